// Package monitor keeps one snapshot of every connected Android and Apple
// device and tells subscribers when it changes.
package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"Sherpa/pkg/adb"
	"Sherpa/pkg/bus"
	"Sherpa/pkg/logger"
	"Sherpa/pkg/types"
	"Sherpa/pkg/xcode"
)

const (
	DefaultDebounceWindow = 500 * time.Millisecond
	DefaultReconnectDelay = 5 * time.Second
)

// AndroidSource delivers adb device lists
type AndroidSource interface {
	Devices() []adb.Device
	Subscribe(fn func([]adb.Device)) func()
	Running() bool
	Start(ctx context.Context) error
}

// AppleSource wraps the Xcode tools used for discovery
type AppleSource interface {
	ObserverPath(ctx context.Context) (string, error)
	Observe(ctx context.Context, path string) (xcode.Process, error)
	ListTargets(ctx context.Context) ([]xcode.Target, error)
	SimulatorStates(ctx context.Context) (map[string]string, error)
}

// Publisher receives a devices-changed event for every change. Publish must not block.
type Publisher interface {
	Publish(event bus.Event) error
}

// Options tunes the monitor
type Options struct {
	EnableApple    bool
	DebounceWindow time.Duration
	ReconnectDelay time.Duration
}

// DefaultOptions enables Apple monitoring on macOS only
func DefaultOptions() Options {
	return Options{
		EnableApple:    runtime.GOOS == "darwin",
		DebounceWindow: DefaultDebounceWindow,
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// DeviceMonitor owns the current ConnectedDevicesSnapshot
type DeviceMonitor struct {
	android   AndroidSource
	apple     AppleSource
	publisher Publisher
	opts      Options

	mu        sync.Mutex
	snapshot  types.ConnectedDevicesSnapshot
	stopped   bool
	listeners map[int]func(types.ConnectedDevicesSnapshot)
	nextID    int

	// notifyMu keeps notifications in mutation order
	notifyMu sync.Mutex

	lifeMu             sync.Mutex
	cancel             context.CancelFunc
	unsubscribeAndroid func()
	debouncer          *Debouncer
	loopDone           chan struct{}

	procMu sync.Mutex
	proc   xcode.Process

	appleState atomic.Int32
}

// New creates a monitor. Any source or the publisher may be nil.
func New(android AndroidSource, apple AppleSource, publisher Publisher, opts Options) *DeviceMonitor {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &DeviceMonitor{
		android:   android,
		apple:     apple,
		publisher: publisher,
		opts:      opts,
		snapshot:  types.ConnectedDevicesSnapshot{}.Clone(),
		listeners: make(map[int]func(types.ConnectedDevicesSnapshot)),
	}
}

// Start subscribes to Android updates and launches the Apple observe loop.
// Platform failures are logged and leave that platform empty. An Android source
// started here runs on ctx, so Stop leaves it to its owner.
func (m *DeviceMonitor) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()

	if m.android != nil {
		m.unsubscribeAndroid = m.android.Subscribe(m.handleAndroid)
		if !m.android.Running() {
			if err := m.android.Start(ctx); err != nil {
				logger.LogWarn("monitor").Err(err).Msg("Android device source unavailable")
			}
		}
		m.seedAndroid(m.android.Devices())
	}

	if m.opts.EnableApple && m.apple != nil {
		m.debouncer = NewDebouncer(m.opts.DebounceWindow, func() { m.refreshApple(runCtx) })
		m.loopDone = make(chan struct{})
		go m.runAppleLoop(runCtx, m.loopDone)
	}

	logger.LogInfo("monitor").
		Bool("android", m.android != nil).
		Bool("apple", m.opts.EnableApple && m.apple != nil).
		Msg("Device monitor started")
}

// Stop tears everything down. Safe before Start and safe to call twice.
func (m *DeviceMonitor) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	if m.unsubscribeAndroid != nil {
		m.unsubscribeAndroid()
		m.unsubscribeAndroid = nil
	}
	if m.cancel == nil {
		return
	}

	m.cancel()
	if m.debouncer != nil {
		m.debouncer.Stop()
	}
	m.killProcess()
	if m.loopDone != nil {
		<-m.loopDone
		m.loopDone = nil
	}
	m.cancel = nil

	logger.LogInfo("monitor").Msg("Device monitor stopped")
}

// Current returns a copy of the snapshot
func (m *DeviceMonitor) Current() types.ConnectedDevicesSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Clone()
}

// OnChanged registers fn for every change. fn runs synchronously on the goroutine
// that applied the change. The returned func unsubscribes.
func (m *DeviceMonitor) OnChanged(fn func(types.ConnectedDevicesSnapshot)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// AppleState reports where the observe loop is
func (m *DeviceMonitor) AppleState() AppleState {
	return AppleState(m.appleState.Load())
}

// apply runs mutate on a copy of the snapshot and publishes the result if it differs
func (m *DeviceMonitor) apply(mutate func(*types.ConnectedDevicesSnapshot)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	next := m.snapshot.Clone()
	mutate(&next)
	if next.Equal(m.snapshot) {
		m.mu.Unlock()
		return
	}
	m.snapshot = next
	handlers := m.sortedListeners()
	m.mu.Unlock()

	logger.DeviceLog().
		Int("android_devices", len(next.AndroidDevices)).
		Int("android_emulators", len(next.AndroidEmulators)).
		Int("apple_devices", len(next.ApplePhysicalDevices)).
		Int("booted_simulators", len(next.BootedSimulators)).
		Msg("Connected devices changed")

	for _, h := range handlers {
		h(next.Clone())
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(bus.NewDevicesChanged(next)); err != nil {
			logger.LogWarn("monitor").Err(err).Msg("Failed to publish devices-changed")
		}
	}
}

// sortedListeners must be called with m.mu held
func (m *DeviceMonitor) sortedListeners() []func(types.ConnectedDevicesSnapshot) {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	handlers := make([]func(types.ConnectedDevicesSnapshot), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, m.listeners[id])
	}
	return handlers
}

func (m *DeviceMonitor) setProcess(p xcode.Process) {
	m.procMu.Lock()
	m.proc = p
	m.procMu.Unlock()
}

func (m *DeviceMonitor) killProcess() {
	m.procMu.Lock()
	p := m.proc
	m.procMu.Unlock()

	if p != nil {
		_ = p.Kill()
	}
}
