package hzlog

import (
	"io"
	"log/slog"
)

var nopHandler = slog.NewTextHandler(io.Discard, nil)

func NopLogger() *slog.Logger {
	return slog.New(nopHandler)
}

// Error is the attribute every component uses to log an error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
