package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"Sherpa/pkg/adb"
	"Sherpa/pkg/bus"
	"Sherpa/pkg/xcode"
)

// fakeAndroid is an in-memory AndroidSource
type fakeAndroid struct {
	mu       sync.Mutex
	devices  []adb.Device
	handler  func([]adb.Device)
	running  bool
	startErr error
	starts   int
	startCtx context.Context
}

func (f *fakeAndroid) Devices() []adb.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adb.Device(nil), f.devices...)
}

func (f *fakeAndroid) Subscribe(fn func([]adb.Device)) func() {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

func (f *fakeAndroid) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeAndroid) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.startCtx = ctx
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

// emit delivers devices to the subscribed handler, if any
func (f *fakeAndroid) emit(devices []adb.Device) {
	f.mu.Lock()
	f.devices = devices
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(devices)
	}
}

// fakeProcess is an observe process backed by a pipe
type fakeProcess struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
	done chan struct{}
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{r: r, w: w, done: make(chan struct{})}
}

func (p *fakeProcess) Stdout() io.Reader { return p.r }

func (p *fakeProcess) Wait() error {
	<-p.done
	return nil
}

func (p *fakeProcess) Kill() error {
	p.once.Do(func() {
		p.w.CloseWithError(io.EOF)
		close(p.done)
	})
	return nil
}

func (p *fakeProcess) writeLine(t *testing.T, line string) {
	t.Helper()
	if _, err := p.w.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write to observe stdout: %v", err)
	}
}

// exit simulates xcdevice terminating on its own
func (p *fakeProcess) exit() { p.Kill() }

// fakeApple is a scripted AppleSource
type fakeApple struct {
	mu       sync.Mutex
	pathErr  error
	targets  []xcode.Target
	listErr  error
	states   map[string]string
	stateErr error
	lists    int
	observes int
	procs    chan *fakeProcess
	// observeErrs fail the next spawns in order
	observeErrs []error
}

func newFakeApple() *fakeApple {
	return &fakeApple{procs: make(chan *fakeProcess, 8), states: map[string]string{}}
}

func (f *fakeApple) ObserverPath(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pathErr != nil {
		return "", f.pathErr
	}
	return "/Dev/usr/bin/xcdevice", nil
}

func (f *fakeApple) Observe(ctx context.Context, path string) (xcode.Process, error) {
	f.mu.Lock()
	f.observes++
	if len(f.observeErrs) > 0 {
		err := f.observeErrs[0]
		f.observeErrs = f.observeErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	p := newFakeProcess()
	go func() {
		select {
		case <-ctx.Done():
			p.Kill()
		case <-p.done:
		}
	}()
	f.procs <- p
	return p, nil
}

func (f *fakeApple) ListTargets(ctx context.Context) ([]xcode.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]xcode.Target(nil), f.targets...), nil
}

func (f *fakeApple) SimulatorStates(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	states := make(map[string]string, len(f.states))
	for k, v := range f.states {
		states[k] = v
	}
	return states, nil
}

func (f *fakeApple) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeApple) observeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observes
}

func (f *fakeApple) nextProcess(t *testing.T) *fakeProcess {
	t.Helper()
	select {
	case p := <-f.procs:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("xcdevice observe was not started")
		return nil
	}
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []bus.Event
	err    error
}

func (f *fakePublisher) Publish(event bus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

var errBoom = errors.New("boom")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
