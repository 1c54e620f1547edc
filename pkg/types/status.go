package types

// MonitorStatus summarizes the device monitor for diagnostics
type MonitorStatus struct {
	AndroidRunning bool   `json:"androidRunning"`
	AppleEnabled   bool   `json:"appleEnabled"`
	AppleState     string `json:"appleState"`
	HistoryEnabled bool   `json:"historyEnabled"`
	DeviceCount    int    `json:"deviceCount"`
}
