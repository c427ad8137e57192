package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the handler built by New.
type Options struct {
	Level string // debug, info, warn, error
	File  string // optional rotating log file, in addition to stdout
}

// FromEnv reads LOG_LEVEL, DEBUG and LOG_FILE.
func FromEnv() Options {
	level := os.Getenv("LOG_LEVEL")
	if os.Getenv("DEBUG") == "true" {
		level = "debug"
	}
	return Options{Level: level, File: os.Getenv("LOG_FILE")}
}

// New builds the run logger. It is passed explicitly to every stage.
func New(opts Options) *slog.Logger {
	var w io.Writer = os.Stdout
	if opts.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFromString(opts.Level)}))
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
