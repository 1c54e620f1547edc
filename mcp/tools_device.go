package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"Sherpa/pkg/history"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	platformAll     = "all"
	platformAndroid = "android"
	platformApple   = "apple"
)

// registerDeviceTools registers device monitoring tools
func (s *MCPServer) registerDeviceTools() {
	// device_list - List connected devices
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List connected Android devices and emulators, Apple devices and booted simulators"),
			mcp.WithString("platform",
				mcp.Description("Filter by platform: android, apple or all (default: all)"),
				mcp.Enum(platformAll, platformAndroid, platformApple),
			),
		),
		s.handleDeviceList,
	)

	// device_history - Attach/detach history
	s.server.AddTool(
		mcp.NewTool("device_history",
			mcp.WithDescription("Show recent attach and detach transitions, newest first"),
			mcp.WithString("device_id",
				mcp.Description("Only show transitions of this serial or identifier"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of transitions (default: 20, max: 500)"),
			),
		),
		s.handleDeviceHistory,
	)

	// monitor_status - Device monitor diagnostics
	s.server.AddTool(
		mcp.NewTool("monitor_status",
			mcp.WithDescription("Report whether the Android tracker and Apple observer are running"),
		),
		s.handleMonitorStatus,
	)
}

// Tool handlers

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	platform := platformAll
	if p, ok := args["platform"].(string); ok && p != "" {
		platform = strings.ToLower(p)
	}
	if platform != platformAll && platform != platformAndroid && platform != platformApple {
		return nil, fmt.Errorf("invalid platform %q: must be android, apple or all", platform)
	}

	snap := filterSnapshot(s.app.GetConnectedDevices(), platform)

	if snap.Count() == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No devices connected"),
			},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d device(s):\n", snap.Count())

	if len(snap.AndroidDevices) > 0 {
		b.WriteString("\nAndroid devices:\n")
		for i, d := range snap.AndroidDevices {
			fmt.Fprintf(&b, "%d. %s  Model: %s, Product: %s\n", i+1, d.Serial, orDash(d.Model), orDash(d.Product))
		}
	}
	if len(snap.AndroidEmulators) > 0 {
		b.WriteString("\nAndroid emulators:\n")
		for i, d := range snap.AndroidEmulators {
			fmt.Fprintf(&b, "%d. %s  Model: %s\n", i+1, d.Serial, orDash(d.Model))
		}
	}
	if len(snap.ApplePhysicalDevices) > 0 {
		b.WriteString("\nApple devices:\n")
		for i, d := range snap.ApplePhysicalDevices {
			fmt.Fprintf(&b, "%d. %s (%s)  Model: %s, OS: %s, Interface: %s\n",
				i+1, d.Name, d.Identifier, orDash(d.Model), orDash(d.OSVersion), orDash(d.Interface))
		}
	}
	if len(snap.BootedSimulators) > 0 {
		b.WriteString("\nBooted simulators:\n")
		for i, d := range snap.BootedSimulators {
			fmt.Fprintf(&b, "%d. %s (%s)  Model: %s\n", i+1, d.Name, d.Identifier, orDash(d.Model))
		}
	}

	jsonData, _ := json.MarshalIndent(snap, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(b.String()),
			mcp.NewTextContent(fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData))),
		},
	}, nil
}

func (s *MCPServer) handleDeviceHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	deviceID, _ := args["device_id"].(string)

	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = min(int(l), history.MaxLimit)
	}

	rows, err := s.app.GetDeviceHistory(deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get device history: %w", err)
	}

	if len(rows) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No device history recorded"),
			},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d transition(s):\n\n", len(rows))
	for _, t := range rows {
		fmt.Fprintf(&b, "- %d %s %s/%s %s (%s)\n", t.Timestamp, t.Action, t.Platform, t.Kind, t.DeviceID, orDash(t.Name))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(b.String()),
		},
	}, nil
}

func (s *MCPServer) handleMonitorStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.app.GetMonitorStatus()

	result := "Device monitor status:\n\n"
	result += fmt.Sprintf("Android tracker: %s\n", runningText(status.AndroidRunning))
	if status.AppleEnabled {
		result += fmt.Sprintf("Apple observer: %s\n", status.AppleState)
	} else {
		result += "Apple observer: disabled\n"
	}
	result += fmt.Sprintf("History: %s\n", enabledText(status.HistoryEnabled))
	result += fmt.Sprintf("Connected: %d\n", status.DeviceCount)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func filterSnapshot(snap ConnectedDevicesSnapshot, platform string) ConnectedDevicesSnapshot {
	snap = snap.Clone()
	switch platform {
	case platformAndroid:
		snap.ApplePhysicalDevices = snap.ApplePhysicalDevices[:0]
		snap.BootedSimulators = snap.BootedSimulators[:0]
	case platformApple:
		snap.AndroidDevices = snap.AndroidDevices[:0]
		snap.AndroidEmulators = snap.AndroidEmulators[:0]
	}
	return snap
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runningText(b bool) string {
	if b {
		return "running"
	}
	return "stopped"
}

func enabledText(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
