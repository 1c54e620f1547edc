package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func frame(payload string) string {
	return fmt.Sprintf("%04x%s", len(payload), payload)
}

func TestParseDeviceList(t *testing.T) {
	output := `List of devices attached
* daemon started successfully
R58M1                  device usb:1-1 product:o1sxx model:SM_G991B device:o1s transport_id:3
emulator-5554          device product:sdk_gphone64 model:sdk_gphone64_arm64 device:emu64a transport_id:1
R58M2                  offline transport_id:4
192.168.1.20:5555      unauthorized

`
	devices := ParseDeviceList(output)
	if len(devices) != 4 {
		t.Fatalf("Expected 4 devices, got %d: %+v", len(devices), devices)
	}

	tests := []struct {
		serial   string
		state    string
		model    string
		emulator bool
	}{
		{"R58M1", "device", "SM_G991B", false},
		{"emulator-5554", "device", "sdk_gphone64_arm64", true},
		{"R58M2", "offline", "", false},
		{"192.168.1.20:5555", "unauthorized", "", false},
	}
	for i, tt := range tests {
		d := devices[i]
		if d.Serial != tt.serial || d.State != tt.state || d.Model != tt.model || d.IsEmulator != tt.emulator {
			t.Errorf("Device %d: got %+v, want %+v", i, d, tt)
		}
	}
	if devices[0].TransportID != "3" || devices[0].Product != "o1sxx" {
		t.Errorf("Expected product and transport id to be parsed, got %+v", devices[0])
	}
	if !devices[0].Online() || devices[2].Online() {
		t.Error("Online() should only be true for state device")
	}
}

func TestReadFrame(t *testing.T) {
	stream := frame("R58M1\tdevice\nemulator-5554\tdevice\n") + frame("") + frame("R58M1\toffline\n")
	r := bufio.NewReader(strings.NewReader(stream))

	first, err := readFrame(r)
	if err != nil {
		t.Fatalf("First frame failed: %v", err)
	}
	if len(first) != 2 || !first[1].IsEmulator {
		t.Errorf("Unexpected first frame: %+v", first)
	}

	second, err := readFrame(r)
	if err != nil {
		t.Fatalf("Second frame failed: %v", err)
	}
	if second == nil || len(second) != 0 {
		t.Errorf("Expected empty non-nil list for zero-length frame, got %#v", second)
	}

	third, err := readFrame(r)
	if err != nil {
		t.Fatalf("Third frame failed: %v", err)
	}
	if len(third) != 1 || third[0].State != "offline" {
		t.Errorf("Unexpected third frame: %+v", third)
	}

	if _, err := readFrame(r); !errors.Is(err, io.EOF) {
		t.Errorf("Expected EOF at end of stream, got %v", err)
	}
}

func TestReadFrameInvalidHeader(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("zzzzR58M1\tdevice\n"))
	if _, err := readFrame(r); err == nil {
		t.Fatal("Expected error for non-hex length")
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("0020R58M1"))
	if _, err := readFrame(r); err == nil {
		t.Fatal("Expected error for truncated payload")
	}
}

func TestResolvePathConfigured(t *testing.T) {
	fake := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolvePath(fake)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != fake {
		t.Errorf("Expected %s, got %s", fake, got)
	}

	if _, err := ResolvePath(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrADBNotFound) {
		t.Errorf("Expected ErrADBNotFound, got %v", err)
	}
}

// fakeTracker hands out one pipe per tracker start
type fakeTracker struct {
	mu      sync.Mutex
	starts  int
	writers chan *io.PipeWriter
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{writers: make(chan *io.PipeWriter, 8)}
}

func (f *fakeTracker) start(ctx context.Context, adbPath string) (io.ReadCloser, func() error, error) {
	pr, pw := io.Pipe()
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
	}()
	f.writers <- pw
	return pr, func() error { return nil }, nil
}

func (f *fakeTracker) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeTracker) next(t *testing.T) *io.PipeWriter {
	t.Helper()
	select {
	case pw := <-f.writers:
		return pw
	case <-time.After(2 * time.Second):
		t.Fatal("Tracker was not started")
		return nil
	}
}

func newTestWatcher(t *testing.T, tracker *fakeTracker, seed []Device) *Watcher {
	t.Helper()
	fake := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(fake, nil, 0755); err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(fake)
	w.startTracker = tracker.start
	w.listDevices = func(ctx context.Context, adbPath string) ([]Device, error) {
		return seed, nil
	}
	w.limiter = rate.NewLimiter(rate.Every(time.Millisecond), 1)
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met in time")
}

func TestWatcherSeedsAndTracks(t *testing.T) {
	tracker := newFakeTracker()
	w := newTestWatcher(t, tracker, []Device{{Serial: "R58M1", State: "device"}})

	var mu sync.Mutex
	var updates [][]Device
	unsubscribe := w.Subscribe(func(devices []Device) {
		mu.Lock()
		updates = append(updates, devices)
		mu.Unlock()
	})
	defer unsubscribe()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if !w.Running() {
		t.Error("Expected watcher to be running")
	}
	if got := w.Devices(); len(got) != 1 || got[0].Serial != "R58M1" {
		t.Errorf("Expected seeded device list, got %+v", got)
	}

	pw := tracker.next(t)
	go pw.Write([]byte(frame("R58M1\tdevice\nemulator-5554\tdevice\n")))

	waitFor(t, func() bool { return len(w.Devices()) == 2 })

	mu.Lock()
	n := len(updates)
	mu.Unlock()
	if n < 2 {
		t.Errorf("Expected seed and frame updates, got %d", n)
	}
}

func TestWatcherRestartsAfterStreamDeath(t *testing.T) {
	tracker := newFakeTracker()
	w := newTestWatcher(t, tracker, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	first := tracker.next(t)
	first.Close()

	second := tracker.next(t)
	go second.Write([]byte(frame("R58M2\tdevice\n")))

	waitFor(t, func() bool {
		d := w.Devices()
		return len(d) == 1 && d[0].Serial == "R58M2"
	})
	if tracker.startCount() < 2 {
		t.Errorf("Expected tracker to be restarted, got %d starts", tracker.startCount())
	}
}

func TestWatcherStop(t *testing.T) {
	tracker := newFakeTracker()
	w := newTestWatcher(t, tracker, nil)

	w.Stop() // before Start

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tracker.next(t)

	w.Stop()
	w.Stop()

	if w.Running() {
		t.Error("Expected watcher to be stopped")
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	w := NewWatcher("")
	calls := 0
	unsubscribe := w.Subscribe(func([]Device) { calls++ })

	w.update([]Device{{Serial: "a", State: "device"}})
	unsubscribe()
	unsubscribe()
	w.update([]Device{{Serial: "b", State: "device"}})

	if calls != 1 {
		t.Errorf("Expected 1 call before unsubscribe, got %d", calls)
	}
}

func TestWatcherStartWithoutADB(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "no-adb"))
	if err := w.Start(context.Background()); !errors.Is(err, ErrADBNotFound) {
		t.Fatalf("Expected ErrADBNotFound, got %v", err)
	}
	if w.Running() {
		t.Error("Watcher should not run without adb")
	}
}
