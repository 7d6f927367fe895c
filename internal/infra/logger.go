package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new slog.Logger with log rotation support.
// file names the rotated log under cfg.Logging.Dir (e.g. "oracle.log").
func NewLogger(cfg *Config, file string) *slog.Logger {
	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = "logs"
	}
	if file == "" {
		file = "app.log"
	}

	// Create logs directory if not exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Fallback to stderr if directory creation fails
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	// Setup lumberjack logger for file rotation
	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, file),
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}

	// Multi-writer: Log to both file and stdout
	writer := io.MultiWriter(os.Stdout, fileLogger)

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
	}))
}

// NewFileLogger logs to the rotated file only, for interactive CLIs whose stdout is the UI.
func NewFileLogger(cfg *Config, file string) *slog.Logger {
	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, file),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(fileLogger, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
	}))
}

// ParseLevel maps a config level name to a slog level (default info).
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
