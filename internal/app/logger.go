package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/heartmarshall/treecleaner/internal/config"
)

// NewLogger builds the process logger on os.Stderr and installs it as the
// slog default.
//
// Format "json" is for production, "text" adds source locations for local
// runs. Level is debug, info, warn or error; "off" discards everything.
// Durations are rendered as strings ("1.2ms") in both formats.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "off" {
		return slog.New(slog.DiscardHandler)
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		AddSource:   strings.EqualFold(cfg.Format, "text"),
		ReplaceAttr: durationAsString,
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func durationAsString(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().String())
	}
	return a
}

func parseLevel(s string) slog.Level {
	switch s {
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
