package hzlog

import (
	"context"
	"log/slog"
)

type attrsKey struct{}

// ContextWith returns a context carrying attrs. The handler built by Build
// appends them to every record logged with that context.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	oldAttrs := getAttrs(ctx)

	newAttrs := make([]slog.Attr, 0, len(oldAttrs)+len(attrs))
	newAttrs = append(newAttrs, oldAttrs...)
	newAttrs = append(newAttrs, attrs...)

	return context.WithValue(ctx, attrsKey{}, newAttrs)
}

// GetLogger returns l enriched with the attributes stored in ctx. Useful when
// the record is emitted without the context (e.g. from a websocket writer).
func GetLogger(ctx context.Context, l *slog.Logger) *slog.Logger {
	attrs := getAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}

	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}

	return l.With(args...)
}

func getAttrs(ctx context.Context) []slog.Attr {
	currentAttrs := ctx.Value(attrsKey{})
	if currentAttrs == nil {
		return nil
	}

	// cannot panic
	return currentAttrs.([]slog.Attr)
}
