package statesvc

import (
	"errors"
	"fmt"

	"github.com/HazyCorp/statesync/internal/statestore"
)

// ValidationError reports a malformed update request.
type ValidationError struct {
	Reason string
}

func validationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "invalid update request: " + e.Reason
}

// ConflictError is returned when the caller's last modified time is older
// than the stored one, or when a concurrent update committed first. Current
// holds the record the caller should re-fetch from.
type ConflictError struct {
	Current statestore.Record
}

func (e *ConflictError) Error() string {
	return "state is out of date"
}

// ErrStoreUnavailable matches every StoreUnavailableError via errors.Is.
var ErrStoreUnavailable = errors.New("state store unavailable")

// StoreUnavailableError wraps a failure of the backing store. Retrying the
// request is safe.
type StoreUnavailableError struct {
	Internal error
}

func storeUnavailable(err error) error {
	return &StoreUnavailableError{Internal: err}
}

func (e *StoreUnavailableError) Error() string {
	return ErrStoreUnavailable.Error() + ": " + e.Internal.Error()
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Internal
}

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
