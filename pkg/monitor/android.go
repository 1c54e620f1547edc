package monitor

import (
	"Sherpa/pkg/adb"
	"Sherpa/pkg/types"
)

func (m *DeviceMonitor) handleAndroid(devices []adb.Device) {
	physical, emulators := partitionAndroid(devices)
	m.apply(func(s *types.ConnectedDevicesSnapshot) {
		s.AndroidDevices = physical
		s.AndroidEmulators = emulators
	})
}

// seedAndroid installs the initial list without notifying anyone
func (m *DeviceMonitor) seedAndroid(devices []adb.Device) {
	physical, emulators := partitionAndroid(devices)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.snapshot.AndroidDevices = physical
	m.snapshot.AndroidEmulators = emulators
}

// partitionAndroid keeps only devices in state "device", split by emulator flag
func partitionAndroid(devices []adb.Device) (physical, emulators []types.AndroidDevice) {
	physical = []types.AndroidDevice{}
	emulators = []types.AndroidDevice{}

	for _, d := range devices {
		if !d.Online() {
			continue
		}
		entry := types.AndroidDevice{
			Serial:      d.Serial,
			State:       d.State,
			Model:       d.Model,
			Product:     d.Product,
			TransportID: d.TransportID,
			IsEmulator:  d.IsEmulator,
		}
		if d.IsEmulator {
			emulators = append(emulators, entry)
		} else {
			physical = append(physical, entry)
		}
	}
	return physical, emulators
}
