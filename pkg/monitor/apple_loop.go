package monitor

import (
	"bufio"
	"context"
	"runtime/debug"
	"strings"
	"time"

	"Sherpa/pkg/logger"
	"Sherpa/pkg/xcode"
)

// AppleState is the state of the xcdevice observe loop
type AppleState int32

const (
	AppleIdle AppleState = iota
	AppleConnecting
	AppleObserving
	AppleStopped
)

func (s AppleState) String() string {
	switch s {
	case AppleIdle:
		return "idle"
	case AppleConnecting:
		return "connecting"
	case AppleObserving:
		return "observing"
	case AppleStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (m *DeviceMonitor) setAppleState(s AppleState) {
	m.appleState.Store(int32(s))
}

// runAppleLoop keeps one `xcdevice observe` alive until ctx is cancelled.
// If xcdevice cannot be located the loop gives up for good.
func (m *DeviceMonitor) runAppleLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.setAppleState(AppleStopped)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("monitor", r, string(debug.Stack()))
		}
	}()

	for {
		m.setAppleState(AppleConnecting)

		path, err := m.apple.ObserverPath(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.LogWarn("monitor").Err(err).Msg("xcdevice unavailable, Apple device monitoring disabled")
			}
			return
		}

		proc, err := m.apple.Observe(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.LogWarn("monitor").Err(err).Dur("retry_in", m.opts.ReconnectDelay).Msg("Failed to start xcdevice observe")
			if !sleepCtx(ctx, m.opts.ReconnectDelay) {
				return
			}
			continue
		}

		m.setProcess(proc)
		m.setAppleState(AppleObserving)
		logger.LogInfo("monitor").Str("path", path).Msg("Observing Apple devices")

		// anything attached while we were not observing is only picked up by a full refresh
		m.debouncer.Trigger()

		if err := m.readObserve(proc); err != nil && ctx.Err() == nil {
			logger.LogWarn("monitor").Err(err).Msg("Reading xcdevice observe output failed")
		}

		_ = proc.Kill()
		_ = proc.Wait()
		m.setProcess(nil)

		if ctx.Err() != nil {
			return
		}

		logger.LogWarn("monitor").Dur("retry_in", m.opts.ReconnectDelay).Msg("xcdevice observe exited, reconnecting")
		if !sleepCtx(ctx, m.opts.ReconnectDelay) {
			return
		}
	}
}

// readObserve reads until the process closes stdout, triggering a refresh on attach/detach lines.
// It returns the read error, if any, other than EOF.
func (m *DeviceMonitor) readObserve(proc xcode.Process) error {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxObserveLine)
	for scanner.Scan() {
		if isAttachDetach(scanner.Text()) {
			logger.LogDebug("monitor").Str("line", strings.TrimSpace(scanner.Text())).Msg("Apple device event")
			m.debouncer.Trigger()
		}
	}
	return scanner.Err()
}

// maxObserveLine is the longest observe line accepted before the read gives up
const maxObserveLine = 1024 * 1024

func isAttachDetach(line string) bool {
	line = strings.ToLower(strings.TrimLeft(line, " \t"))
	return strings.HasPrefix(line, "attach:") || strings.HasPrefix(line, "detach:")
}

// sleepCtx waits d or until ctx is done. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
