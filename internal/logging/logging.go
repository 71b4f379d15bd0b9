// Package logging builds the process-wide slog logger: plain text to stderr
// plus a rotated scan log in the output directory.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging configuration.
type Config struct {
	Level    string
	FilePath string // empty disables the file writer
}

// Setup installs the default slog logger per cfg and returns a closer for
// the file writer (nil-safe to call).
func Setup(cfg Config) func() {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     90, // days
		}
		w = io.MultiWriter(os.Stderr, lj)
		closeFn = func() { lj.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})))
	return closeFn
}

// ParseLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
