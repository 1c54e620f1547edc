package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"Sherpa/pkg/bus"
	"Sherpa/pkg/history"
	"Sherpa/pkg/logger"
	"Sherpa/pkg/types"

	"github.com/gin-gonic/gin"
)

// SnapshotProvider returns the current device snapshot
type SnapshotProvider interface {
	Current() types.ConnectedDevicesSnapshot
}

// HistoryReader reads recorded device transitions
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Transition, error)
	ForDevice(ctx context.Context, deviceID string, limit int) ([]history.Transition, error)
}

// SetupRoutes registers the HTTP and WebSocket routes. hist and metrics may be nil.
func SetupRoutes(router *gin.Engine, devices SnapshotProvider, hist HistoryReader, hub *Hub, metrics *Metrics) {
	router.Use(CORSMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.GET("/devices", func(c *gin.Context) {
			c.JSON(http.StatusOK, SuccessResponse(devices.Current()))
		})

		api.GET("/devices/history", func(c *gin.Context) {
			GetHistory(c, hist)
		})
	}

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	router.GET("/ws", func(c *gin.Context) {
		initial, err := json.Marshal(bus.NewDevicesChanged(devices.Current()))
		if err != nil {
			initial = nil
		}
		hub.serveWS(c.Writer, c.Request, initial)
	})
}

// GetHistory serves device transitions, newest first
func GetHistory(c *gin.Context, hist HistoryReader) {
	if hist == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse("device history is disabled"))
		return
	}

	limit := history.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse("limit must be a positive integer"))
			return
		}
		limit = min(n, history.MaxLimit)
	}

	var (
		rows []history.Transition
		err  error
	)
	if device := c.Query("device"); device != "" {
		rows, err = hist.ForDevice(c.Request.Context(), device, limit)
	} else {
		rows, err = hist.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		logger.LogWarn("api").Err(err).Msg("Failed to read device history")
		c.JSON(http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(rows))
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Server serves the router on an address
type Server struct {
	srv *http.Server
}

// NewServer builds a gin engine with all routes
func NewServer(listen string, devices SnapshotProvider, hist HistoryReader, hub *Hub, metrics *Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	SetupRoutes(router, devices, hist, hub, metrics)

	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens in the background
func (s *Server) Start() {
	go func() {
		logger.LogInfo("api").Str("listen", s.srv.Addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("api").Err(err).Msg("HTTP server failed")
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
