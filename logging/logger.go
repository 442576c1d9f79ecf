// Package logging builds the structured slog logger used across the backend.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelCritical sits above ERROR for the beat --loglevel CRITICAL option
const LevelCritical = slog.Level(12)

// Config controls the handler, level and optional rotated file output
type Config struct {
	// Level is the minimum log level
	Level slog.Level

	// OutputFile is the path to a rotated log file; empty logs to stdout only
	OutputFile string

	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool

	// JSON switches between the JSON and text handlers
	JSON bool

	// Output overrides stdout, mainly for tests
	Output io.Writer
}

// DefaultConfig logs JSON at INFO to stdout with 100MB rotation settings
func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		JSON:       true,
	}
}

// New builds a logger writing to stdout (or cfg.Output) and, when
// OutputFile is set, to a lumberjack-rotated file
func New(cfg Config) *slog.Logger {
	var writers []io.Writer
	if cfg.Output != nil {
		writers = append(writers, cfg.Output)
	} else {
		writers = append(writers, os.Stdout)
	}

	if cfg.OutputFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	writer := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{
		Level: cfg.Level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel accepts DEBUG, INFO, WARN/WARNING, ERROR and CRITICAL in any case
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
