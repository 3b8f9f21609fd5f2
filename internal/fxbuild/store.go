package fxbuild

import (
	"log/slog"

	"github.com/pkg/errors"
	"go.uber.org/fx"

	"github.com/HazyCorp/statesync/internal/configuration"
	"github.com/HazyCorp/statesync/internal/statestore"
)

type StoreIn struct {
	fx.In

	Config    configuration.Store
	Lifecycle fx.Lifecycle
	Logger    *slog.Logger
}

// NewStateStore builds the backend chosen by store.kind. Connections are
// opened and closed with the application lifecycle.
func NewStateStore(in StoreIn) (statestore.Store, error) {
	l := in.Logger.With(slog.String("store_kind", in.Config.Kind))

	switch in.Config.Kind {
	case configuration.StoreMemory:
		l.Warn("memory store keeps state in this process only, it is lost on restart")
		return statestore.NewMemory(), nil

	case configuration.StoreFile:
		return statestore.NewFile(*in.Config.File, l)

	case configuration.StoreSQLite:
		return newSQLiteStore(*in.Config.SQLite, in.Lifecycle, l)

	case configuration.StoreRedis:
		client := NewRedisClient(*in.Config.Redis, in.Lifecycle, l)
		return statestore.NewRedis(statestore.RedisInput{
			KeyPrefix:   in.Config.Redis.KeyPrefix,
			Logger:      l,
			RedisClient: client,
		})

	default:
		return nil, errors.Errorf("unknown store kind %q", in.Config.Kind)
	}
}

func newSQLiteStore(c statestore.SQLiteConfig, lc fx.Lifecycle, l *slog.Logger) (statestore.Store, error) {
	db, err := statestore.OpenSQLite(c.Path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open sqlite store")
	}
	lc.Append(fx.StopHook(db.Close))

	return statestore.NewSQLite(db, l)
}
