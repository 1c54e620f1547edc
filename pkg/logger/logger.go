// Package logger holds the process-wide zerolog logger and its file output.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger
var Logger zerolog.Logger

var (
	fileMu sync.Mutex
	file   *RotatingFile
)

// LogLevel log level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LogLevelDebug: zerolog.DebugLevel,
	LogLevelInfo:  zerolog.InfoLevel,
	LogLevelWarn:  zerolog.WarnLevel,
	LogLevelError: zerolog.ErrorLevel,
}

func (l LogLevel) zerologLevel() zerolog.Level {
	if zl, ok := zerologLevels[l]; ok {
		return zl
	}
	return zerolog.InfoLevel
}

// ParseLevel maps a config string to a LogLevel. Unknown strings map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogConfig log configuration
type LogConfig struct {
	Level      LogLevel
	Console    bool      // write to ConsoleOut
	ConsoleOut io.Writer // nil means stdout; MCP stdio mode needs stderr
	File       bool
	FilePath   string
	MaxSizeMB  int  // rotate when the file grows past this
	MaxAgeDays int  // backups older than this are removed on rotation
	MaxBackups int  // backups kept
	Compress   bool // gzip backups
}

// DefaultLogConfig returns the console-only configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LogLevelInfo,
		Console:    true,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
	}
}

// PersistentLogConfig also writes <dataDir>/logs/sherpa.log
func PersistentLogConfig(dataDir string) LogConfig {
	cfg := DefaultLogConfig()
	cfg.File = true
	cfg.FilePath = LogFilePath(dataDir)
	return cfg
}

// LogFilePath is where PersistentLogConfig puts the active log file
func LogFilePath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "sherpa.log")
}

// InitLogger rebuilds Logger from config. A previously opened log file is closed.
func InitLogger(config LogConfig) error {
	out := config.ConsoleOut
	if out == nil {
		out = os.Stdout
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}

	var writers []io.Writer
	if config.Console {
		writers = append(writers, console)
	}

	var rf *RotatingFile
	if config.File && config.FilePath != "" {
		var err error
		rf, err = OpenRotatingFile(config.FilePath, RotateOptions{
			MaxSizeMB:  config.MaxSizeMB,
			MaxAgeDays: config.MaxAgeDays,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		})
		if err != nil {
			return err
		}
		writers = append(writers, rf)
	}

	if len(writers) == 0 {
		writers = append(writers, console)
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(config.Level.zerologLevel()).
		With().
		Timestamp().
		Caller().
		Logger()

	fileMu.Lock()
	previous := file
	file = rf
	fileMu.Unlock()
	if previous != nil {
		previous.Close()
	}
	return nil
}

// SetLevel changes the level of the running logger
func SetLevel(level LogLevel) {
	Logger = Logger.Level(level.zerologLevel())
}

// CloseLogger closes the log file, if any. Console output keeps working.
func CloseLogger() {
	fileMu.Lock()
	rf := file
	file = nil
	fileMu.Unlock()

	if rf != nil {
		Logger = Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		rf.Close()
	}
}

// GetLogFilePath returns the active log file, or "" when file output is off
func GetLogFilePath() string {
	fileMu.Lock()
	defer fileMu.Unlock()
	if file == nil {
		return ""
	}
	return file.Path()
}

// LogDebug starts a debug event tagged with module
func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

// LogInfo starts an info event tagged with module
func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

// LogWarn starts a warn event tagged with module
func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

// LogError starts an error event tagged with module
func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// DeviceLog is the info event for connected-device changes
func DeviceLog() *zerolog.Event {
	return Logger.Info().Str("module", "device").Str("category", "devices")
}

// LogPanic records a recovered panic
func LogPanic(module string, recovered interface{}, stack string) {
	Logger.Error().
		Str("module", module).
		Str("category", "panic").
		Interface("recovered", recovered).
		Str("stack", stack).
		Time("at", time.Now()).
		Msg("Panic recovered")
}

func init() {
	_ = InitLogger(DefaultLogConfig())
}
