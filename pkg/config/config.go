// Package config loads the YAML configuration for the device monitor host.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Android AndroidConfig `yaml:"android"`
	Apple   AppleConfig   `yaml:"apple"`
	History HistoryConfig `yaml:"history"`
	Server  ServerConfig  `yaml:"server"`
	Bus     BusConfig     `yaml:"bus"`

	// DataDir holds the log directory and the history database.
	// Empty means <user config dir>/Sherpa.
	DataDir string `yaml:"data_dir"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  bool   `yaml:"file"`
}

// ---- ANDROID ----

type AndroidConfig struct {
	Enabled bool   `yaml:"enabled"`
	ADBPath string `yaml:"adb_path"` // empty: ANDROID_HOME, ANDROID_SDK_ROOT, then PATH
}

// ---- APPLE ----

type AppleConfig struct {
	// Enabled is a pointer so that an absent key means "auto" (darwin only).
	Enabled          *bool  `yaml:"enabled"`
	DeveloperDir     string `yaml:"developer_dir"` // empty: xcode-select -p
	DebounceMs       int    `yaml:"debounce_ms"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	ListTimeoutMs    int    `yaml:"list_timeout_ms"`
}

// ---- HISTORY ----

type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ---- SERVER ----

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ---- BUS ----

type BusConfig struct {
	QueueSize int `yaml:"queue_size"`
}

const (
	DefaultDebounce       = 500 * time.Millisecond
	DefaultReconnectDelay = 5 * time.Second
	DefaultListTimeout    = 1 * time.Second
	DefaultListen         = "127.0.0.1:7420"
	DefaultQueueSize      = 64
)

// Default returns the configuration used when no file exists
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", File: true},
		Android: AndroidConfig{Enabled: true},
		Apple: AppleConfig{
			DebounceMs:       int(DefaultDebounce / time.Millisecond),
			ReconnectDelayMs: int(DefaultReconnectDelay / time.Millisecond),
			ListTimeoutMs:    int(DefaultListTimeout / time.Millisecond),
		},
		History: HistoryConfig{Enabled: true},
		Server:  ServerConfig{Enabled: false, Listen: DefaultListen},
		Bus:     BusConfig{QueueSize: DefaultQueueSize},
	}
}

// Load reads path over the defaults, normalizes and validates.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := Validate(&cfg); err != nil {
		return cfg, err
	}
	Normalize(&cfg)
	return cfg, nil
}

// Save writes cfg as YAML
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (a AppleConfig) Debounce() time.Duration {
	return time.Duration(a.DebounceMs) * time.Millisecond
}

func (a AppleConfig) ReconnectDelay() time.Duration {
	return time.Duration(a.ReconnectDelayMs) * time.Millisecond
}

func (a AppleConfig) ListTimeout() time.Duration {
	return time.Duration(a.ListTimeoutMs) * time.Millisecond
}

// AppleEnabled resolves the auto setting against goos
func (c Config) AppleEnabled(goos string) bool {
	if c.Apple.Enabled != nil {
		return *c.Apple.Enabled
	}
	return goos == "darwin"
}
