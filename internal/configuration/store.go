package configuration

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/HazyCorp/statesync/internal/statestore"
)

const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

var storeKinds = []string{StoreMemory, StoreFile, StoreSQLite, StoreRedis}

// Store chooses the backend of the state record. Only the section matching
// Kind is read.
type Store struct {
	Kind   string                   `json:"kind" yaml:"kind"`
	Redis  *Redis                   `json:"redis" yaml:"redis"`
	SQLite *statestore.SQLiteConfig `json:"sqlite" yaml:"sqlite"`
	File   *statestore.FileConfig   `json:"file" yaml:"file"`
}

func (s *Store) Validate() error {
	if !lo.Contains(storeKinds, s.Kind) {
		return errors.Errorf("unknown store kind %q, allowed options are %v", s.Kind, storeKinds)
	}

	switch s.Kind {
	case StoreRedis:
		if s.Redis == nil {
			return errors.New("store.redis must be provided for redis store")
		}
		return errors.Wrap(s.Redis.Validate(), "invalid redis config")
	case StoreSQLite:
		if s.SQLite == nil || s.SQLite.Path == "" {
			return errors.New("store.sqlite.path must be provided for sqlite store")
		}
	case StoreFile:
		if s.File == nil || s.File.Path == "" {
			return errors.New("store.file.path must be provided for file store")
		}
	}

	return nil
}
