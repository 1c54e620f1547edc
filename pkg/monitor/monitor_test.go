package monitor

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Sherpa/pkg/adb"
	"Sherpa/pkg/types"
	"Sherpa/pkg/xcode"
)

func androidOnly() Options {
	return Options{EnableApple: false}
}

func appleOptions() Options {
	return Options{
		EnableApple:    true,
		DebounceWindow: 30 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	m := New(nil, nil, nil, Options{})
	if m.opts.DebounceWindow != DefaultDebounceWindow || m.opts.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Unexpected defaults: %+v", m.opts)
	}
	snap := m.Current()
	if snap.AndroidDevices == nil || snap.BootedSimulators == nil {
		t.Error("Current() must never return nil sequences")
	}
	if m.AppleState() != AppleIdle {
		t.Errorf("Expected idle, got %s", m.AppleState())
	}
}

func TestAndroidPartition(t *testing.T) {
	android := &fakeAndroid{running: true}
	m := New(android, nil, nil, androidOnly())
	m.Start(context.Background())
	defer m.Stop()

	android.emit([]adb.Device{
		{Serial: "R58M1", State: "device"},
		{Serial: "emulator-5554", State: "device", IsEmulator: true},
		{Serial: "R58M2", State: "offline"},
	})

	snap := m.Current()
	if len(snap.AndroidDevices) != 1 || snap.AndroidDevices[0].Serial != "R58M1" {
		t.Errorf("Unexpected physical devices: %+v", snap.AndroidDevices)
	}
	if len(snap.AndroidEmulators) != 1 || snap.AndroidEmulators[0].Serial != "emulator-5554" {
		t.Errorf("Unexpected emulators: %+v", snap.AndroidEmulators)
	}
}

func TestAndroidNoOnlineDevices(t *testing.T) {
	physical, emulators := partitionAndroid([]adb.Device{
		{Serial: "R58M1", State: "unauthorized"},
		{Serial: "emulator-5556", State: "offline", IsEmulator: true},
		{Serial: "R58M3", State: "recovery"},
	})
	if len(physical) != 0 || len(emulators) != 0 {
		t.Errorf("Expected both sequences empty, got %v / %v", physical, emulators)
	}
	if physical == nil || emulators == nil {
		t.Error("Expected empty, non-nil sequences")
	}
}

func TestStartSeedsWithoutPublishing(t *testing.T) {
	android := &fakeAndroid{devices: []adb.Device{{Serial: "R58M1", State: "device", Model: "SM_G991B"}}}
	pub := &fakePublisher{}
	m := New(android, nil, pub, androidOnly())

	var calls int32
	m.OnChanged(func(types.ConnectedDevicesSnapshot) { atomic.AddInt32(&calls, 1) })

	m.Start(context.Background())
	defer m.Stop()

	if android.starts != 1 {
		t.Errorf("Expected the source to be started once, got %d", android.starts)
	}
	snap := m.Current()
	if len(snap.AndroidDevices) != 1 || snap.AndroidDevices[0].Model != "SM_G991B" {
		t.Errorf("Expected seeded device, got %+v", snap.AndroidDevices)
	}
	if atomic.LoadInt32(&calls) != 0 || pub.count() != 0 {
		t.Error("Seeding must not notify")
	}
}

func TestAndroidSourceStartFailure(t *testing.T) {
	android := &fakeAndroid{startErr: errBoom}
	m := New(android, nil, nil, androidOnly())
	m.Start(context.Background())
	defer m.Stop()

	if m.Current().Count() != 0 {
		t.Error("Expected empty snapshot when the Android source fails")
	}
}

func TestChangesNotifyOnce(t *testing.T) {
	android := &fakeAndroid{running: true}
	pub := &fakePublisher{}
	m := New(android, nil, pub, androidOnly())

	var mu sync.Mutex
	var seen []types.ConnectedDevicesSnapshot
	unsubscribe := m.OnChanged(func(s types.ConnectedDevicesSnapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	m.Start(context.Background())
	defer m.Stop()

	list := []adb.Device{{Serial: "R58M1", State: "device"}}
	android.emit(list)
	android.emit(list) // unchanged

	mu.Lock()
	if len(seen) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(seen))
	}
	seen[0].AndroidDevices[0].Serial = "mutated"
	mu.Unlock()

	if m.Current().AndroidDevices[0].Serial != "R58M1" {
		t.Error("Subscribers must receive copies")
	}
	if pub.count() != 1 {
		t.Errorf("Expected 1 published event, got %d", pub.count())
	}
	if pub.events[0].Topic != "devices-changed" {
		t.Errorf("Unexpected topic %q", pub.events[0].Topic)
	}

	unsubscribe()
	android.emit(nil)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Errorf("Expected no notification after unsubscribe, got %d", len(seen))
	}
	if pub.count() != 2 {
		t.Errorf("Expected the publisher to still receive changes, got %d", pub.count())
	}
}

func TestPublishErrorIsNotFatal(t *testing.T) {
	android := &fakeAndroid{running: true}
	pub := &fakePublisher{err: errBoom}
	m := New(android, nil, pub, androidOnly())
	m.Start(context.Background())
	defer m.Stop()

	android.emit([]adb.Device{{Serial: "R58M1", State: "device"}})

	if len(m.Current().AndroidDevices) != 1 {
		t.Error("A failed publish must not roll back the snapshot")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	android := &fakeAndroid{running: true}
	apple := newFakeApple()
	m := New(android, apple, nil, appleOptions())

	m.Stop() // before Start

	m.Start(context.Background())
	android.emit([]adb.Device{{Serial: "R58M1", State: "device"}})
	proc := apple.nextProcess(t)
	waitFor(t, "observing", func() bool { return m.AppleState() == AppleObserving })

	before := m.Current()
	m.Stop()
	m.Stop()

	select {
	case <-proc.done:
	default:
		t.Error("Expected observe process to be killed")
	}
	if m.AppleState() != AppleStopped {
		t.Errorf("Expected stopped, got %s", m.AppleState())
	}

	android.emit(nil)
	if !m.Current().Equal(before) {
		t.Error("Snapshot changed after Stop")
	}
}

func TestAppleRefreshKeepsOnlyBootedSimulators(t *testing.T) {
	apple := newFakeApple()
	apple.targets = []xcode.Target{
		{Identifier: "ABC", Name: "iPhone 15", Simulator: true, Available: true},
		{Identifier: "BOOT", Name: "iPad", Simulator: true, Available: true},
		{Identifier: "GONE", Name: "iPhone SE", Simulator: true, Available: true},
		{Identifier: "PHONE", Name: "Test Phone", Available: true, Interface: "usb", OSVersion: "17.4"},
		{Identifier: "IGN", Name: "Ignored", Available: true, Ignored: true},
		{Identifier: "OFF", Name: "Unavailable", Available: false},
	}
	apple.states = map[string]string{"ABC": "Shutdown", "BOOT": "booted"}

	m := New(nil, apple, nil, appleOptions())
	m.refreshApple(context.Background())

	snap := m.Current()
	if len(snap.BootedSimulators) != 1 || snap.BootedSimulators[0].Identifier != "BOOT" {
		t.Errorf("Unexpected simulators: %+v", snap.BootedSimulators)
	}
	if snap.BootedSimulators[0].State != "Booted" {
		t.Errorf("Expected state Booted, got %q", snap.BootedSimulators[0].State)
	}
	if len(snap.ApplePhysicalDevices) != 1 || snap.ApplePhysicalDevices[0].Interface != "usb" {
		t.Errorf("Unexpected devices: %+v", snap.ApplePhysicalDevices)
	}
}

func TestAppleRefreshShutdownSimulator(t *testing.T) {
	apple := newFakeApple()
	apple.targets = []xcode.Target{{Identifier: "ABC", Simulator: true, Available: true}}
	apple.states = map[string]string{"ABC": "Shutdown"}

	m := New(nil, apple, nil, appleOptions())
	m.refreshApple(context.Background())

	if n := len(m.Current().BootedSimulators); n != 0 {
		t.Errorf("Expected no booted simulators, got %d", n)
	}
}

func TestAppleRefreshFailureKeepsState(t *testing.T) {
	apple := newFakeApple()
	apple.targets = []xcode.Target{{Identifier: "PHONE", Name: "Test Phone", Available: true}}

	m := New(nil, apple, nil, appleOptions())
	m.refreshApple(context.Background())
	before := m.Current()
	if len(before.ApplePhysicalDevices) != 1 {
		t.Fatalf("Expected one device before failure, got %+v", before.ApplePhysicalDevices)
	}

	apple.mu.Lock()
	apple.targets = nil
	apple.listErr = xcode.ErrMalformedOutput
	apple.mu.Unlock()
	m.refreshApple(context.Background())

	if !m.Current().Equal(before) {
		t.Error("Failed list must leave Apple state untouched")
	}

	apple.mu.Lock()
	apple.listErr = nil
	apple.stateErr = errBoom
	apple.mu.Unlock()
	m.refreshApple(context.Background())

	if !m.Current().Equal(before) {
		t.Error("Failed simctl lookup must leave Apple state untouched")
	}
}

func TestAppleRefreshCancelledHasNoEffect(t *testing.T) {
	apple := newFakeApple()
	apple.targets = []xcode.Target{{Identifier: "PHONE", Available: true}}

	m := New(nil, apple, nil, appleOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.refreshApple(ctx)

	if m.Current().Count() != 0 || apple.listCount() != 0 {
		t.Error("Cancelled refresh must not run")
	}
}

func TestAppleLoopBurstTriggersSingleRefresh(t *testing.T) {
	apple := newFakeApple()
	opts := appleOptions()
	opts.DebounceWindow = 100 * time.Millisecond
	m := New(nil, apple, nil, opts)
	m.Start(context.Background())
	defer m.Stop()

	proc := apple.nextProcess(t)
	for i := 0; i < 5; i++ {
		proc.writeLine(t, "Attach: 00008120-000A")
		proc.writeLine(t, "  detach: 00008120-000A")
	}

	time.Sleep(400 * time.Millisecond)
	if n := apple.listCount(); n != 1 {
		t.Fatalf("Expected exactly one refresh for the burst, got %d", n)
	}

	proc.writeLine(t, "Detach: ABC")
	waitFor(t, "second refresh", func() bool { return apple.listCount() == 2 })

	proc.writeLine(t, "Unrelated output")
	time.Sleep(250 * time.Millisecond)
	if n := apple.listCount(); n != 2 {
		t.Errorf("Non attach/detach lines must not refresh, got %d refreshes", n)
	}
}

func TestAppleLoopReconnectsAfterExit(t *testing.T) {
	apple := newFakeApple()
	apple.targets = []xcode.Target{{Identifier: "PHONE", Name: "Test Phone", Available: true}}
	m := New(nil, apple, nil, appleOptions())
	m.Start(context.Background())
	defer m.Stop()

	first := apple.nextProcess(t)
	waitFor(t, "initial refresh", func() bool { return len(m.Current().ApplePhysicalDevices) == 1 })

	first.exit()

	apple.nextProcess(t)
	if apple.observeCount() != 2 {
		t.Errorf("Expected a second spawn, got %d", apple.observeCount())
	}
	waitFor(t, "observing again", func() bool { return m.AppleState() == AppleObserving })
	waitFor(t, "refresh after reconnect", func() bool { return apple.listCount() >= 2 })
}

func TestAppleLoopRetriesFailedSpawn(t *testing.T) {
	apple := newFakeApple()
	apple.observeErrs = []error{errBoom}
	opts := appleOptions()
	opts.ReconnectDelay = 100 * time.Millisecond
	m := New(nil, apple, nil, opts)

	started := time.Now()
	m.Start(context.Background())
	defer m.Stop()

	apple.nextProcess(t)
	if elapsed := time.Since(started); elapsed < opts.ReconnectDelay {
		t.Errorf("Respawned after %s, before the %s delay", elapsed, opts.ReconnectDelay)
	}
	if n := apple.observeCount(); n != 2 {
		t.Errorf("Expected a failed and a successful spawn, got %d", n)
	}
	waitFor(t, "observing", func() bool { return m.AppleState() == AppleObserving })
}

func TestAppleLoopStopDuringReconnectDelay(t *testing.T) {
	apple := newFakeApple()
	apple.observeErrs = []error{errBoom}
	opts := appleOptions()
	opts.ReconnectDelay = 10 * time.Second
	m := New(nil, apple, nil, opts)
	m.Start(context.Background())

	waitFor(t, "failed spawn", func() bool { return apple.observeCount() == 1 })
	time.Sleep(20 * time.Millisecond)

	stopped := time.Now()
	m.Stop()
	if elapsed := time.Since(stopped); elapsed > time.Second {
		t.Errorf("Stop waited %s for the reconnect delay", elapsed)
	}
	if m.AppleState() != AppleStopped {
		t.Errorf("Expected stopped, got %s", m.AppleState())
	}
	time.Sleep(50 * time.Millisecond)
	if n := apple.observeCount(); n != 1 {
		t.Errorf("Expected no spawn after Stop, got %d", n)
	}
}

func TestReadObserveReportsOverlongLine(t *testing.T) {
	m := New(nil, nil, nil, appleOptions())
	m.debouncer = NewDebouncer(time.Millisecond, func() {})
	defer m.debouncer.Stop()

	proc := newFakeProcess()
	defer proc.Kill()
	go func() {
		_, _ = proc.w.Write([]byte(strings.Repeat("x", 2*maxObserveLine) + "\n"))
	}()

	if err := m.readObserve(proc); !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("Expected bufio.ErrTooLong, got %v", err)
	}
}

func TestStopLeavesAndroidSourceRunning(t *testing.T) {
	android := &fakeAndroid{}
	m := New(android, nil, nil, androidOnly())
	m.Start(context.Background())
	m.Stop()

	if android.startCtx == nil {
		t.Fatal("Expected the Android source to be started")
	}
	if err := android.startCtx.Err(); err != nil {
		t.Errorf("Stop must not cancel the Android source, got %v", err)
	}
}

func TestAppleLoopStopsWhenToolMissing(t *testing.T) {
	apple := newFakeApple()
	apple.pathErr = xcode.ErrToolNotFound
	m := New(nil, apple, nil, appleOptions())
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, "loop to give up", func() bool { return m.AppleState() == AppleStopped })
	time.Sleep(50 * time.Millisecond)
	if apple.observeCount() != 0 {
		t.Errorf("Expected no spawn without xcdevice, got %d", apple.observeCount())
	}
}

func TestIsAttachDetach(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Attach: 00008120-000A", true},
		{"Detach: ABC", true},
		{"   attach: ABC", true},
		{"\tDETACH: ABC", true},
		{"Attached devices", false},
		{"Listening for all devices", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isAttachDetach(tt.line); got != tt.want {
			t.Errorf("isAttachDetach(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestAppleStateString(t *testing.T) {
	if AppleObserving.String() != "observing" || AppleState(42).String() != "unknown" {
		t.Error("Unexpected AppleState names")
	}
}
