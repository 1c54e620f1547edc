package main

import (
	"Sherpa/mcp"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

// Implement mcp.SherpaApp interface
var _ mcp.SherpaApp = (*MCPBridge)(nil)

func (b *MCPBridge) GetConnectedDevices() mcp.ConnectedDevicesSnapshot {
	return b.app.GetConnectedDevices()
}

// GetDeviceHistory never hands the MCP layer a nil slice
func (b *MCPBridge) GetDeviceHistory(deviceID string, limit int) ([]mcp.Transition, error) {
	rows, err := b.app.GetDeviceHistory(deviceID, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []mcp.Transition{}
	}
	return rows, nil
}

func (b *MCPBridge) GetMonitorStatus() mcp.MonitorStatus {
	return b.app.GetMonitorStatus()
}

func (b *MCPBridge) GetAppVersion() string {
	return b.app.GetAppVersion()
}
