package xslog

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// With returns ctx carrying the context logger enriched with attrs, plus
// that logger.
func With(ctx context.Context, attrs ...slog.Attr) (context.Context, *slog.Logger) {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	logger := FromContext(ctx).With(args...)
	return WithLogger(ctx, logger), logger
}
