package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleSnapshot() ConnectedDevicesSnapshot {
	return ConnectedDevicesSnapshot{
		AndroidDevices:   []AndroidDevice{{Serial: "R58M1", State: "device", Model: "SM_G991B"}},
		AndroidEmulators: []AndroidDevice{{Serial: "emulator-5554", State: "device", IsEmulator: true}},
		ApplePhysicalDevices: []AppleDevice{
			{Identifier: "00008110-001", Name: "iPhone", Platform: "com.apple.platform.iphoneos", Interface: "usb"},
		},
		BootedSimulators: []AppleSimulator{{Identifier: "ABC", Name: "iPhone 15", State: "Booted"}},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()

	clone.AndroidDevices[0].Serial = "changed"
	clone.BootedSimulators = append(clone.BootedSimulators, AppleSimulator{Identifier: "DEF"})

	if orig.AndroidDevices[0].Serial != "R58M1" {
		t.Errorf("Clone shares backing array with original: %s", orig.AndroidDevices[0].Serial)
	}
	if len(orig.BootedSimulators) != 1 {
		t.Errorf("Expected original to keep 1 simulator, got %d", len(orig.BootedSimulators))
	}
}

func TestCloneOfEmptyRendersArrays(t *testing.T) {
	data, err := json.Marshal(ConnectedDevicesSnapshot{}.Clone())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("Expected empty arrays, got %s", data)
	}
}

func TestEqual(t *testing.T) {
	a := sampleSnapshot()
	b := sampleSnapshot()
	if !a.Equal(b) {
		t.Error("Expected identical snapshots to be equal")
	}

	b.AndroidDevices[0].State = "offline"
	if a.Equal(b) {
		t.Error("Expected snapshots with different state to differ")
	}

	if !(ConnectedDevicesSnapshot{}).Equal(ConnectedDevicesSnapshot{}.Clone()) {
		t.Error("Expected nil and empty sequences to compare equal")
	}
}

func TestRefs(t *testing.T) {
	refs := sampleSnapshot().Refs()
	if len(refs) != 4 {
		t.Fatalf("Expected 4 refs, got %d", len(refs))
	}

	tests := []struct {
		key  string
		name string
	}{
		{"android/device/R58M1", "SM_G991B"},
		{"android/emulator/emulator-5554", "emulator-5554"},
		{"apple/device/00008110-001", "iPhone"},
		{"apple/simulator/ABC", "iPhone 15"},
	}
	for _, tt := range tests {
		ref, ok := refs[tt.key]
		if !ok {
			t.Errorf("Missing ref %s", tt.key)
			continue
		}
		if ref.Name != tt.name {
			t.Errorf("Ref %s: expected name %q, got %q", tt.key, tt.name, ref.Name)
		}
	}
}
