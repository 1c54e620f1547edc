package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// historyResourceLimit bounds sherpa://devices/history
const historyResourceLimit = 100

// handleDevicesResource handles the sherpa://devices resource
func (s *MCPServer) handleDevicesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.app.GetConnectedDevices())
}

// handleHistoryResource handles the sherpa://devices/history resource
func (s *MCPServer) handleHistoryResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	rows, err := s.app.GetDeviceHistory("", historyResourceLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get device history: %w", err)
	}
	return jsonResource(request.Params.URI, rows)
}

// handleStatusResource handles the sherpa://status resource
func (s *MCPServer) handleStatusResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.app.GetMonitorStatus())
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
