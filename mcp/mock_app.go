package mcp

import (
	"errors"
	"sync"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockSherpaApp is a mock implementation of SherpaApp for testing
type MockSherpaApp struct {
	mu    sync.Mutex
	Calls []MockCall

	Devices      ConnectedDevicesSnapshot
	History      []Transition
	HistoryError error
	Status       MonitorStatus
	AppVersion   string
}

// NewMockSherpaApp creates a MockSherpaApp with an empty snapshot
func NewMockSherpaApp() *MockSherpaApp {
	return &MockSherpaApp{
		Calls:      make([]MockCall, 0),
		Devices:    ConnectedDevicesSnapshot{}.Clone(),
		History:    []Transition{},
		AppVersion: "1.0.0-test",
	}
}

func (m *MockSherpaApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns a copy of the recorded calls
func (m *MockSherpaApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.Calls...)
}

// WasMethodCalled reports whether method was called at least once
func (m *MockSherpaApp) WasMethodCalled(method string) bool {
	for _, c := range m.GetCalls() {
		if c.Method == method {
			return true
		}
	}
	return false
}

// LastCall returns the most recent call to method
func (m *MockSherpaApp) LastCall(method string) (MockCall, bool) {
	calls := m.GetCalls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Method == method {
			return calls[i], true
		}
	}
	return MockCall{}, false
}

func (m *MockSherpaApp) GetConnectedDevices() ConnectedDevicesSnapshot {
	m.recordCall("GetConnectedDevices")
	return m.Devices.Clone()
}

func (m *MockSherpaApp) GetDeviceHistory(deviceID string, limit int) ([]Transition, error) {
	m.recordCall("GetDeviceHistory", deviceID, limit)
	return m.History, m.HistoryError
}

func (m *MockSherpaApp) GetMonitorStatus() MonitorStatus {
	m.recordCall("GetMonitorStatus")
	return m.Status
}

func (m *MockSherpaApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

// Test errors
var (
	ErrHistoryDisabled = errors.New("device history is disabled")
)
