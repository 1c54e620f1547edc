package monitor

import (
	"runtime/debug"
	"sync"
	"time"

	"Sherpa/pkg/logger"
)

// maxWaitWindows bounds how many windows a steady stream of triggers can hold back the action
const maxWaitWindows = 4

// Debouncer coalesces bursts of triggers into one action.
// Every Trigger re-arms the timer, so the action runs window after the last trigger,
// but never later than maxWait after the first trigger of a burst.
// Actions never overlap.
type Debouncer struct {
	window  time.Duration
	maxWait time.Duration
	action  func()

	mu           sync.Mutex
	timer        *time.Timer
	pending      bool
	pendingSince time.Time
	stopped      bool

	runMu sync.Mutex
}

// NewDebouncer creates a debouncer that runs action after window of quiet
func NewDebouncer(window time.Duration, action func()) *Debouncer {
	return &Debouncer{window: window, maxWait: maxWaitWindows * window, action: action}
}

// Trigger (re)arms the timer. No-op after Stop.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := time.Now()
	if !d.pending {
		d.pending = true
		d.pendingSince = now
	}
	delay := d.window
	if left := d.pendingSince.Add(d.maxWait).Sub(now); left < delay {
		delay = max(left, 0)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.fire)
}

// Stop disarms the timer and ignores later triggers
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	stopped := d.stopped
	d.pending = false
	d.mu.Unlock()
	if stopped {
		return
	}

	d.runMu.Lock()
	defer d.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic("monitor", r, string(debug.Stack()))
		}
	}()

	d.action()
}
