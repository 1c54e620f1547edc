package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"Sherpa/pkg/logger"

	"golang.org/x/time/rate"
)

// ErrADBNotFound is returned when no adb executable can be located
var ErrADBNotFound = errors.New("adb executable not found")

// TrackerFunc starts `adb track-devices` and returns its stdout and a wait func
type TrackerFunc func(ctx context.Context, adbPath string) (io.ReadCloser, func() error, error)

// ListFunc runs a one-shot device listing
type ListFunc func(ctx context.Context, adbPath string) ([]Device, error)

// Watcher keeps the current adb device list by tailing `adb track-devices -l`.
// Restarts after stream death are paced by a rate limiter.
type Watcher struct {
	adbPath      string
	startTracker TrackerFunc
	listDevices  ListFunc
	limiter      *rate.Limiter

	mu        sync.RWMutex
	devices   []Device
	listeners map[int]func([]Device)
	nextID    int

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher. adbPath may be empty to auto-detect.
func NewWatcher(adbPath string) *Watcher {
	return &Watcher{
		adbPath:      adbPath,
		startTracker: execTracker,
		listDevices:  ListDevices,
		limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
		listeners:    make(map[int]func([]Device)),
	}
}

// ResolvePath finds adb: configured path, then ANDROID_HOME, ANDROID_SDK_ROOT, then PATH
func ResolvePath(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrADBNotFound, configured, err)
		}
		return configured, nil
	}

	name := "adb"
	if runtime.GOOS == "windows" {
		name = "adb.exe"
	}

	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		root := os.Getenv(env)
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, "platform-tools", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", ErrADBNotFound
}

// ListDevices runs `adb devices -l`
func ListDevices(ctx context.Context, adbPath string) ([]Device, error) {
	cmd := exec.CommandContext(ctx, adbPath, "devices", "-l")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to run adb devices (path: %s): %w, output: %s", adbPath, err, string(output))
	}
	return ParseDeviceList(string(output)), nil
}

func execTracker(ctx context.Context, adbPath string) (io.ReadCloser, func() error, error) {
	cmd := exec.CommandContext(ctx, adbPath, "track-devices", "-l")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start track-devices: %w", err)
	}
	return stdout, cmd.Wait, nil
}

// ========================================
// Lifecycle
// ========================================

// Start resolves adb, seeds the device list and starts tracking in the background
func (w *Watcher) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.running {
		return nil
	}

	path, err := ResolvePath(w.adbPath)
	if err != nil {
		return err
	}

	seedCtx, seedCancel := context.WithTimeout(ctx, 5*time.Second)
	if devices, err := w.listDevices(seedCtx, path); err != nil {
		logger.LogWarn("adb").Err(err).Msg("Initial device listing failed")
	} else {
		w.update(devices)
	}
	seedCancel()

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.run(runCtx, path, w.done)
	return nil
}

// Stop stops tracking and waits for the tracker to exit
func (w *Watcher) Stop() {
	w.runMu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the tracker loop is active
func (w *Watcher) Running() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running
}

// Devices returns a copy of the last known device list
func (w *Watcher) Devices() []Device {
	w.mu.RLock()
	defer w.mu.RUnlock()

	devices := make([]Device, len(w.devices))
	copy(devices, w.devices)
	return devices
}

// Subscribe registers fn for every device list update. The returned func unsubscribes.
func (w *Watcher) Subscribe(fn func([]Device)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, id)
			w.mu.Unlock()
		})
	}
}

func (w *Watcher) run(ctx context.Context, path string, done chan struct{}) {
	defer close(done)
	defer func() {
		w.runMu.Lock()
		w.running = false
		w.runMu.Unlock()
	}()

	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		stdout, wait, err := w.startTracker(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.LogWarn("adb").Err(err).Msg("Device tracker failed to start")
			continue
		}

		logger.LogInfo("adb").Str("path", path).Msg("Device tracker started")

		reader := bufio.NewReader(stdout)
		for {
			devices, err := readFrame(reader)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					logger.LogWarn("adb").Err(err).Msg("Device tracker read failed")
				}
				break
			}
			w.update(devices)
		}

		stdout.Close()
		_ = wait()

		if ctx.Err() != nil {
			return
		}
		logger.LogWarn("adb").Msg("Device tracker disconnected, restarting")
	}
}

func (w *Watcher) update(devices []Device) {
	list := make([]Device, len(devices))
	copy(list, devices)

	w.mu.Lock()
	w.devices = list
	ids := make([]int, 0, len(w.listeners))
	for id := range w.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func([]Device), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, w.listeners[id])
	}
	w.mu.Unlock()

	for _, h := range handlers {
		snapshot := make([]Device, len(list))
		copy(snapshot, list)
		h(snapshot)
	}
}
