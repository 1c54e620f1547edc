// Package mcp provides the MCP (Model Context Protocol) server for Sherpa.
// It lets external AI clients read the connected device snapshot and its history.
package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"Sherpa/pkg/history"
	"Sherpa/pkg/logger"
	"Sherpa/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Type aliases from shared packages
type (
	ConnectedDevicesSnapshot = types.ConnectedDevicesSnapshot
	MonitorStatus            = types.MonitorStatus
	Transition               = history.Transition
)

// SherpaApp is what the MCP server needs from the host application
type SherpaApp interface {
	GetConnectedDevices() ConnectedDevicesSnapshot
	GetDeviceHistory(deviceID string, limit int) ([]Transition, error)
	GetMonitorStatus() MonitorStatus
	GetAppVersion() string
}

// MCPServer wraps the MCP server
type MCPServer struct {
	app       SherpaApp
	server    *server.MCPServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer creates a new MCP server for Sherpa
func NewMCPServer(app SherpaApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"sherpa-device-monitor",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}

	s.registerDeviceTools()
	s.registerResources()

	return s
}

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"sherpa://devices",
			"Connected Android and Apple devices",
			mcp.WithMIMEType("application/json"),
		),
		s.handleDevicesResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"sherpa://devices/history",
			"Recent device attach and detach transitions",
			mcp.WithMIMEType("application/json"),
		),
		s.handleHistoryResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"sherpa://status",
			"Device monitor status",
			mcp.WithMIMEType("application/json"),
		),
		s.handleStatusResource,
	)
}

// Serve runs the stdio transport until ctx is cancelled or in is closed
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	stdio := server.NewStdioServer(s.server)

	logger.LogInfo("mcp").Str("version", s.app.GetAppVersion()).Msg("Sherpa MCP server started")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		logger.LogError("mcp").Err(err).Msg("MCP server error")
		return err
	}
	return nil
}

// Start serves on stdin/stdout and blocks
func (s *MCPServer) Start(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// IsRunning returns whether the MCP server is serving
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
