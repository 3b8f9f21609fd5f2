package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownContext is cancelled on SIGINT or SIGTERM, or by the returned stop.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
