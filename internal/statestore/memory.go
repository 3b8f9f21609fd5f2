package statestore

import (
	"context"
	"sync"
	"time"
)

// Memory keeps the record in process memory. It satisfies the Store contract
// for a single process only; it is meant for tests and local runs.
type Memory struct {
	mu      sync.Mutex
	rec     Record
	metrics *storeMetrics
}

func NewMemory() *Memory {
	return &Memory{metrics: newStoreMetrics("memory")}
}

func (m *Memory) Get(ctx context.Context) (Record, error) {
	defer m.metrics.GetDuration.UpdateDuration(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.rec.Clone(), nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, expected time.Time, next Record) error {
	defer m.metrics.CompareAndSwapDuration.UpdateDuration(time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.rec.LastModified.Equal(expected) {
		return m.metrics.observe(ErrPreconditionFailed)
	}

	m.rec = next.Clone()
	return nil
}
