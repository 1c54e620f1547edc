package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"Sherpa/pkg/adb"
	"Sherpa/pkg/api"
	"Sherpa/pkg/bus"
	"Sherpa/pkg/cache"
	"Sherpa/pkg/config"
	"Sherpa/pkg/history"
	"Sherpa/pkg/logger"
	"Sherpa/pkg/monitor"
	"Sherpa/pkg/types"
	"Sherpa/pkg/xcode"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var errHistoryDisabled = errors.New("device history is disabled")

// App struct
type App struct {
	ctx        context.Context
	cancel     context.CancelFunc
	version    string
	configPath string

	// uiMode forwards bus events to the wails frontend
	uiMode bool
	// mcpMode keeps stdout clean for the stdio transport and skips the HTTP server
	mcpMode bool
	// tuiMode owns the terminal, so console logging is off
	tuiMode bool

	mu      sync.Mutex
	started bool
	cfg     config.Config

	history    *history.Store
	lastSeen   *cache.Service
	bus        *bus.Bus
	hub        *api.Hub
	server     *api.Server
	adb        *adb.Watcher
	monitor    *monitor.DeviceMonitor
	cfgWatcher *config.Watcher

	// androidSource replaces the adb watcher when set (tests)
	androidSource monitor.AndroidSource
}

// NewApp creates a new App instance
func NewApp(version, configPath string) *App {
	return &App{
		version:    version,
		configPath: configPath,
		cfg:        config.Default(),
	}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	if err := a.start(ctx); err != nil {
		logger.LogError("app").Err(err).Msg("Startup failed")
	}
}

// shutdown is called when the application is closing
func (a *App) shutdown(ctx context.Context) {
	a.stop()
}

func (a *App) start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		logger.LogWarn("app").Err(err).Str("path", a.configPath).Msg("Invalid config, using defaults")
		cfg = config.Default()
		config.Normalize(&cfg)
	}
	a.cfg = cfg

	if err := a.initLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	a.bus = bus.New(cfg.Bus.QueueSize)
	if a.uiMode {
		a.bus.Subscribe(wailsSink{ctx: ctx})
	}

	a.hub = api.NewHub()
	go a.hub.Run(a.ctx)
	a.bus.Subscribe(a.hub)

	if cfg.History.Enabled {
		store, err := history.Open(cfg.DataDir)
		if err != nil {
			logger.LogWarn("app").Err(err).Msg("Device history unavailable")
		} else {
			a.history = store
			a.bus.Subscribe(history.NewSink(store))
		}
	}

	lastSeen, err := cache.New(cfg.DataDir)
	if err != nil {
		logger.LogWarn("app").Err(err).Msg("Last-seen cache unavailable")
	} else {
		a.lastSeen = lastSeen
		a.bus.Subscribe(lastSeen)
	}

	// Interfaces stay nil when a source is disabled
	var android monitor.AndroidSource
	switch {
	case a.androidSource != nil:
		android = a.androidSource
	case cfg.Android.Enabled:
		a.adb = adb.NewWatcher(cfg.Android.ADBPath)
		android = a.adb
	}
	apple := xcode.NewToolchain(cfg.Apple.DeveloperDir, cfg.Apple.ListTimeout())

	a.monitor = monitor.New(android, apple, a.bus, monitor.Options{
		EnableApple:    cfg.AppleEnabled(runtime.GOOS),
		DebounceWindow: cfg.Apple.Debounce(),
		ReconnectDelay: cfg.Apple.ReconnectDelay(),
	})
	var metrics *api.Metrics
	if cfg.Server.Enabled && !a.mcpMode {
		metrics = api.NewMetrics()
		a.bus.Subscribe(metrics)
	}

	a.monitor.Start(a.ctx)

	// Start seeds the snapshot silently, so the sinks get what is already connected here
	if err := a.bus.Publish(bus.NewBaseline(a.monitor.Current())); err != nil {
		logger.LogWarn("app").Err(err).Msg("Failed to publish device baseline")
	}

	if metrics != nil {
		var hist api.HistoryReader
		if a.history != nil {
			hist = a.history
		}
		a.server = api.NewServer(cfg.Server.Listen, a.monitor, hist, a.hub, metrics)
		a.server.Start()
	}

	if a.configPath != "" {
		a.cfgWatcher = config.NewWatcher(a.configPath, a.applyConfig)
		if err := a.cfgWatcher.Start(); err != nil {
			logger.LogWarn("app").Err(err).Msg("Config hot reload disabled")
			a.cfgWatcher = nil
		}
	}

	a.started = true
	logger.LogInfo("app").
		Str("version", a.version).
		Str("dataDir", cfg.DataDir).
		Bool("history", a.history != nil).
		Bool("server", a.server != nil).
		Msg("Sherpa started")
	return nil
}

func (a *App) initLogger(cfg config.Config) error {
	lc := logger.DefaultLogConfig()
	if cfg.Log.File {
		lc = logger.PersistentLogConfig(cfg.DataDir)
	}
	lc.Level = logger.ParseLevel(cfg.Log.Level)
	switch {
	case a.mcpMode:
		lc.ConsoleOut = os.Stderr
	case a.tuiMode:
		lc.ConsoleOut = io.Discard
	}
	return logger.InitLogger(lc)
}

// applyConfig takes the reloaded log level live; everything else needs a restart
func (a *App) applyConfig(cfg config.Config) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	a.mu.Lock()
	restart := cfg.Android != a.cfg.Android || cfg.Server != a.cfg.Server || cfg.History != a.cfg.History
	a.cfg.Log = cfg.Log
	a.mu.Unlock()

	if restart {
		logger.LogInfo("app").Msg("Config change takes effect after restart")
	}
}

func (a *App) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}
	a.started = false

	if a.cfgWatcher != nil {
		a.cfgWatcher.Stop()
		a.cfgWatcher = nil
	}
	a.monitor.Stop()
	if a.adb != nil {
		a.adb.Stop()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			logger.LogWarn("app").Err(err).Msg("HTTP server shutdown")
		}
		cancel()
		a.server = nil
	}

	// Close drains queued events into the sinks, so stores close after it
	a.bus.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.LogWarn("app").Err(err).Msg("Close history")
		}
		a.history = nil
	}
	if a.lastSeen != nil {
		a.lastSeen.Close()
		a.lastSeen = nil
	}
	a.cancel()

	logger.LogInfo("app").Msg("Sherpa stopped")
	logger.CloseLogger()
}

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

// GetConnectedDevices returns the current device snapshot
func (a *App) GetConnectedDevices() types.ConnectedDevicesSnapshot {
	a.mu.Lock()
	m := a.monitor
	a.mu.Unlock()

	if m == nil {
		return types.ConnectedDevicesSnapshot{}.Clone()
	}
	return m.Current()
}

// GetDeviceHistory returns recent attach/detach transitions, newest first.
// An empty deviceID returns transitions for all devices.
func (a *App) GetDeviceHistory(deviceID string, limit int) ([]history.Transition, error) {
	a.mu.Lock()
	store := a.history
	a.mu.Unlock()

	if store == nil {
		return nil, errHistoryDisabled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if deviceID != "" {
		return store.ForDevice(ctx, deviceID, limit)
	}
	return store.Recent(ctx, limit)
}

// GetMonitorStatus summarizes the monitor for diagnostics
func (a *App) GetMonitorStatus() types.MonitorStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := types.MonitorStatus{
		AppleEnabled:   a.cfg.AppleEnabled(runtime.GOOS),
		AppleState:     monitor.AppleIdle.String(),
		HistoryEnabled: a.history != nil,
	}
	if a.adb != nil {
		status.AndroidRunning = a.adb.Running()
	}
	if a.monitor != nil {
		status.AppleState = a.monitor.AppleState().String()
		status.DeviceCount = a.monitor.Current().Count()
	}
	return status
}

// GetLastSeen returns the last time each device key was connected (unix ms)
func (a *App) GetLastSeen() map[string]int64 {
	a.mu.Lock()
	seen := a.lastSeen
	a.mu.Unlock()

	if seen == nil {
		return map[string]int64{}
	}
	return seen.GetAllLastSeen()
}

// wailsSink forwards bus events to the frontend
type wailsSink struct {
	ctx context.Context
}

func (s wailsSink) Name() string { return "wails" }

func (s wailsSink) Handle(_ context.Context, event bus.Event) error {
	wailsRuntime.EventsEmit(s.ctx, event.Topic, event)
	return nil
}
