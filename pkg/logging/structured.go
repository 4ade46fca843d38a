// Package logging provides the gateway's structured logging stack: a
// slog front end with JSON and human-readable text backends, component
// tagging, secret redaction, and a discard logger used as the default by
// components that haven't been handed a real one.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// LogFormat selects the output rendering.
type LogFormat string

const (
	// FormatJSON emits one JSON object per record, for machine ingestion.
	FormatJSON LogFormat = "json"
	// FormatText emits colorized key=value text, for interactive runs.
	FormatText LogFormat = "text"
)

// Config configures NewStructuredLogger.
type Config struct {
	// Level is the minimum level emitted.
	Level slog.Level
	// Format selects JSON or text rendering.
	Format LogFormat
	// Output receives the rendered records; os.Stderr when nil.
	Output io.Writer
	// AddSource attaches the caller's file and line to each record.
	AddSource bool
	// Component tags every record with a component name, e.g. "gateway".
	Component string
}

// NewStructuredLogger builds a logger from cfg.
func NewStructuredLogger(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		// charmbracelet/log implements slog.Handler directly, so it slots
		// in as the text backend without an adapter.
		charmHandler := charmlog.NewWithOptions(cfg.Output, charmlog.Options{
			ReportTimestamp: true,
			ReportCaller:    cfg.AddSource,
			TimeFormat:      time.RFC3339,
		})
		charmHandler.SetLevel(charmlog.Level(cfg.Level))
		handler = charmHandler
	default:
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					if t, ok := a.Value.Any().(time.Time); ok {
						return slog.String("ts", t.Format(time.RFC3339Nano))
					}
				}
				return a
			},
		})
	}

	if cfg.Component != "" {
		handler = &componentHandler{Handler: handler, component: cfg.Component}
	}

	return slog.New(handler)
}

// componentHandler stamps a component attribute onto every record.
type componentHandler struct {
	slog.Handler
	component string
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return h.Handler.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithAttrs(attrs), component: h.component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

// WithComponent returns a child logger tagged with a component name, for
// handing one root logger out to the manager, transport, and REST facade.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// ParseLevel maps a --log-level flag value to a slog.Level, defaulting
// to info for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ParseFormat maps a --log-format flag value to a LogFormat, defaulting
// to JSON.
func ParseFormat(format string) LogFormat {
	switch strings.ToLower(format) {
	case "text", "pretty":
		return FormatText
	default:
		return FormatJSON
	}
}
