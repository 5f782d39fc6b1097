package xslog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Level string

var _ fmt.Stringer = (*Level)(nil)

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

const (
	EnvKey       = "LOG_LEVEL"
	FormatEnvKey = "LOG_FORMAT"
)

const Default = LevelInfo

func Parse(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo:
		return LevelInfo, nil
	case LevelWarn:
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %q (valid: debug, info, warn, error)", s)
	}
}

func FromEnv() Level {
	s := os.Getenv(EnvKey)
	if s == "" {
		return Default
	}
	level, err := Parse(s)
	if err != nil {
		return Default
	}
	return level
}

func (l Level) ToSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l Level) String() string {
	return string(l)
}

// Format selects the handler. The server logs JSON; the CLI defaults to
// text so pushed notifications stay readable next to the log lines.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

func FormatFromEnv(fallback Format) Format {
	switch Format(strings.ToLower(os.Getenv(FormatEnvKey))) {
	case FormatJSON:
		return FormatJSON
	case FormatText:
		return FormatText
	default:
		return fallback
	}
}

func NewLogger(w io.Writer, level Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.ToSlog()}
	if format == FormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func NewLoggerFromEnv(w io.Writer, fallback Format) *slog.Logger {
	return NewLogger(w, FromEnv(), FormatFromEnv(fallback))
}
