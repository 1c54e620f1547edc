package monitor

import (
	"context"

	"Sherpa/pkg/logger"
	"Sherpa/pkg/types"
	"Sherpa/pkg/xcode"
)

// refreshApple re-enumerates Apple targets and replaces the Apple half of the snapshot.
// Any failure keeps the previous Apple state.
func (m *DeviceMonitor) refreshApple(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	timer := logger.StartOperation("monitor", "apple_refresh")

	targets, err := m.apple.ListTargets(ctx)
	if err != nil {
		if ctx.Err() == nil {
			timer.EndWithError(err)
		}
		return
	}

	states, err := m.apple.SimulatorStates(ctx)
	if err != nil {
		if ctx.Err() == nil {
			timer.EndWithError(err)
		}
		return
	}

	if ctx.Err() != nil {
		return
	}

	devices, simulators := buildApple(targets, states)
	timer.AddDetail("devices", len(devices)).AddDetail("simulators", len(simulators)).End()

	m.apply(func(s *types.ConnectedDevicesSnapshot) {
		s.ApplePhysicalDevices = devices
		s.BootedSimulators = simulators
	})
}

// buildApple drops ignored and unavailable targets and keeps only booted simulators
func buildApple(targets []xcode.Target, simStates map[string]string) ([]types.AppleDevice, []types.AppleSimulator) {
	devices := []types.AppleDevice{}
	simulators := []types.AppleSimulator{}

	for _, t := range targets {
		if t.Ignored || !t.Available {
			continue
		}

		if t.Simulator {
			state, ok := simStates[t.Identifier]
			if !ok || !xcode.IsBooted(state) {
				continue
			}
			simulators = append(simulators, types.AppleSimulator{
				Identifier: t.Identifier,
				Name:       t.Name,
				Model:      t.ModelName,
				Platform:   t.Platform,
				State:      xcode.StateBooted,
			})
			continue
		}

		devices = append(devices, types.AppleDevice{
			Identifier:   t.Identifier,
			Name:         t.Name,
			Model:        t.ModelName,
			Platform:     t.Platform,
			Architecture: t.Architecture,
			OSVersion:    t.OSVersion,
			Interface:    t.Interface,
		})
	}
	return devices, simulators
}
