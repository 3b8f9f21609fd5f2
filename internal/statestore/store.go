package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrPreconditionFailed is returned by CompareAndSwap when the stored
// LastModified differs from the expected one.
var ErrPreconditionFailed = errors.New("stored record does not match expected last modified time")

// Store keeps the singleton Record.
type Store interface {
	// Get returns the stored record, or an empty Record when nothing was
	// written yet. Missing data is not an error.
	Get(ctx context.Context) (Record, error)

	// CompareAndSwap atomically replaces the stored record with next, but
	// only if the stored LastModified equals expected. A zero expected means
	// the store must be empty. ErrPreconditionFailed is returned otherwise,
	// and the store is left untouched.
	CompareAndSwap(ctx context.Context, expected time.Time, next Record) error
}
