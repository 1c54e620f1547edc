package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// Helper to create a ReadResourceRequest
func makeResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// Helper to get text from resource contents
func getResourceText(contents []mcp.ResourceContents) string {
	if len(contents) == 0 {
		return ""
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); ok {
		return tc.Text
	}
	return ""
}

// ==================== sherpa://devices ====================

func TestHandleDevicesResource(t *testing.T) {
	mock := NewMockSherpaApp()
	mock.Devices = sampleSnapshot()
	server := NewMCPServer(mock)

	contents, err := server.handleDevicesResource(context.Background(), makeResourceRequest("sherpa://devices"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var snap ConnectedDevicesSnapshot
	if err := json.Unmarshal([]byte(getResourceText(contents)), &snap); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}
	if snap.Count() != 4 {
		t.Errorf("Expected 4 entries, got %d", snap.Count())
	}

	tc := contents[0].(mcp.TextResourceContents)
	if tc.URI != "sherpa://devices" || tc.MIMEType != "application/json" {
		t.Errorf("Unexpected resource metadata %+v", tc)
	}
}

// ==================== sherpa://devices/history ====================

func TestHandleHistoryResource(t *testing.T) {
	mock := NewMockSherpaApp()
	mock.History = []Transition{{ID: "1", DeviceID: "ABC", Action: "attached"}}
	server := NewMCPServer(mock)

	contents, err := server.handleHistoryResource(context.Background(), makeResourceRequest("sherpa://devices/history"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var rows []Transition
	if err := json.Unmarshal([]byte(getResourceText(contents)), &rows); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}
	if len(rows) != 1 || rows[0].DeviceID != "ABC" {
		t.Errorf("Unexpected rows %+v", rows)
	}

	call, _ := mock.LastCall("GetDeviceHistory")
	if call.Args[1] != historyResourceLimit {
		t.Errorf("Expected limit %d, got %v", historyResourceLimit, call.Args[1])
	}
}

func TestHandleHistoryResource_Error(t *testing.T) {
	mock := NewMockSherpaApp()
	mock.HistoryError = ErrHistoryDisabled
	server := NewMCPServer(mock)

	if _, err := server.handleHistoryResource(context.Background(), makeResourceRequest("sherpa://devices/history")); err == nil {
		t.Error("Expected error")
	}
}

// ==================== sherpa://status ====================

func TestHandleStatusResource(t *testing.T) {
	mock := NewMockSherpaApp()
	mock.Status = MonitorStatus{AppleEnabled: true, AppleState: "connecting"}
	server := NewMCPServer(mock)

	contents, err := server.handleStatusResource(context.Background(), makeResourceRequest("sherpa://status"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var status MonitorStatus
	if err := json.Unmarshal([]byte(getResourceText(contents)), &status); err != nil {
		t.Fatalf("Result should be valid JSON: %v", err)
	}
	if status.AppleState != "connecting" {
		t.Errorf("Unexpected status %+v", status)
	}
}
