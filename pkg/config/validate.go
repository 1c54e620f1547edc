package config

import (
	"fmt"
	"net"
	"strings"
)

var validLevels = map[string]bool{
	"":        true,
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if !validLevels[strings.ToLower(strings.TrimSpace(cfg.Log.Level))] {
		return fmt.Errorf("log.level %q: must be one of debug, info, warn, error", cfg.Log.Level)
	}

	// ------------------------------------------------------------
	// APPLE TIMINGS (zero means default, negative is an error)
	// ------------------------------------------------------------

	if cfg.Apple.DebounceMs < 0 {
		return fmt.Errorf("apple.debounce_ms must not be negative, got %d", cfg.Apple.DebounceMs)
	}
	if cfg.Apple.ReconnectDelayMs < 0 {
		return fmt.Errorf("apple.reconnect_delay_ms must not be negative, got %d", cfg.Apple.ReconnectDelayMs)
	}
	if cfg.Apple.ListTimeoutMs < 0 {
		return fmt.Errorf("apple.list_timeout_ms must not be negative, got %d", cfg.Apple.ListTimeoutMs)
	}

	if cfg.Bus.QueueSize < 0 {
		return fmt.Errorf("bus.queue_size must not be negative, got %d", cfg.Bus.QueueSize)
	}

	if cfg.Server.Enabled && cfg.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
			return fmt.Errorf("server.listen %q: %w", cfg.Server.Listen, err)
		}
	}

	return nil
}
