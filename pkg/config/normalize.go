package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Normalize fills zero values with defaults and resolves DataDir.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Apple.DebounceMs == 0 {
		cfg.Apple.DebounceMs = int(DefaultDebounce.Milliseconds())
	}
	if cfg.Apple.ReconnectDelayMs == 0 {
		cfg.Apple.ReconnectDelayMs = int(DefaultReconnectDelay.Milliseconds())
	}
	if cfg.Apple.ListTimeoutMs == 0 {
		cfg.Apple.ListTimeoutMs = int(DefaultListTimeout.Milliseconds())
	}
	if cfg.Bus.QueueSize == 0 {
		cfg.Bus.QueueSize = DefaultQueueSize
	}
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))

	if cfg.DataDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			configDir = os.TempDir()
		}
		cfg.DataDir = filepath.Join(configDir, "Sherpa")
	}
}
