package fxbuild

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/HazyCorp/statesync/internal/broadcast"
	"github.com/HazyCorp/statesync/internal/configuration"
	"github.com/HazyCorp/statesync/internal/metricsrv"
	"github.com/HazyCorp/statesync/internal/stateserver"
	"github.com/HazyCorp/statesync/internal/statesvc"
	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

func NewLogger(c hzlog.Config) (*slog.Logger, error) {
	l, err := hzlog.Build(c)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build logger")
	}

	return l, nil
}

// NewNotifier hands committed records to the websocket hub.
func NewNotifier(h *broadcast.Hub) statesvc.Notifier {
	return h
}

func GetConstructors() []interface{} {
	return []interface{}{
		configuration.Read,
		NewLogger,
		NewStateStore,
		NewNotifier,
		broadcast.NewFX,
		statesvc.NewFX,
		stateserver.NewFX,
		metricsrv.NewFX,
	}
}
