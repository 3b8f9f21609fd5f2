package statestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

type FileConfig struct {
	Path string `json:"path" yaml:"path"`
}

// File keeps the record as a JSON document on disk. Writes go to a temporary
// file in the same directory which is then renamed over the main one. The
// conditional write is serialized by an in-process mutex, so only one process
// may use a given path.
type File struct {
	mu sync.Mutex

	c       FileConfig
	l       *slog.Logger
	metrics *storeMetrics
}

func NewFile(c FileConfig, l *slog.Logger) (*File, error) {
	if c.Path == "" {
		return nil, errors.New("file store path cannot be empty")
	}

	if l == nil {
		l = hzlog.NopLogger()
	}
	l = l.With(
		slog.String("component", "infra:file_store"),
		slog.String("path", c.Path),
	)

	return &File{c: c, l: l, metrics: newStoreMetrics("file")}, nil
}

func (f *File) Get(ctx context.Context) (Record, error) {
	defer f.metrics.GetDuration.UpdateDuration(time.Now())

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.retrieve()
	return rec, f.metrics.observe(err)
}

func (f *File) CompareAndSwap(ctx context.Context, expected time.Time, next Record) error {
	defer f.metrics.CompareAndSwapDuration.UpdateDuration(time.Now())

	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.retrieve()
	if err != nil {
		return f.metrics.observe(errors.Wrap(err, "cannot retrieve record for following changes"))
	}

	if formatExpected(cur.LastModified) != formatExpected(expected) {
		return f.metrics.observe(ErrPreconditionFailed)
	}

	tmpPath, err := f.writeToTemp(next)
	if err != nil {
		return f.metrics.observe(errors.Wrap(err, "cannot write updated record to temporary file"))
	}

	if err := os.Rename(tmpPath, f.c.Path); err != nil {
		_ = os.Remove(tmpPath)
		return f.metrics.observe(errors.Wrap(err, "cannot move temporary file in place of the main state file"))
	}

	f.l.DebugContext(ctx, "record written", slog.String("last_modified", FormatTime(next.LastModified)))
	return nil
}

// writeToTemp returns name of the tempfile
func (f *File) writeToTemp(rec Record) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(f.c.Path), ".statesync-*")
	if err != nil {
		return "", errors.Wrap(err, "cannot open temporary file to make changes atomically")
	}
	defer tmp.Close()

	if err := json.NewEncoder(tmp).Encode(rec); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.Wrap(err, "cannot encode record in json format")
	}

	if err := tmp.Sync(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.Wrap(err, "cannot sync temporary file")
	}

	return tmp.Name(), nil
}

func (f *File) retrieve() (Record, error) {
	data, err := os.ReadFile(f.c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, errors.Wrapf(err, "cannot read file %q", f.c.Path)
	}

	if len(data) == 0 {
		// file is empty, nothing stored yet
		return Record{}, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "cannot decode record from file")
	}

	return rec, nil
}
