package statestore

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// SingletonKey identifies the only record a deployment keeps.
const SingletonKey = "current_state"

// TimeLayout is the serialized form of Record.LastModified in every backend
// and on the wire. Backends compare the serialized strings, so the layout must
// stay canonical: always UTC, always formatted through FormatTime.
const TimeLayout = time.RFC3339Nano

var emptyState = json.RawMessage(`{}`)

// Record is the single shared state value plus the time it was last written.
// A zero LastModified means nothing was written yet.
type Record struct {
	State        json.RawMessage
	LastModified time.Time
}

func (r Record) IsEmpty() bool {
	return r.LastModified.IsZero()
}

// Clone returns a record whose State does not alias r.State.
func (r Record) Clone() Record {
	var st json.RawMessage
	if r.State != nil {
		st = make(json.RawMessage, len(r.State))
		copy(st, r.State)
	}

	return Record{State: st, LastModified: r.LastModified}
}

type wireRecord struct {
	State        json.RawMessage `json:"state"`
	LastModified *string         `json:"lastModified"`
}

// MarshalJSON renders {"state": ..., "lastModified": ...}. An empty record
// renders as {"state": {}, "lastModified": null}.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{State: r.State}
	if len(bytes.TrimSpace(w.State)) == 0 {
		w.State = emptyState
	}
	if !r.IsEmpty() {
		ts := FormatTime(r.LastModified)
		w.LastModified = &ts
	}

	return json.Marshal(w)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "cannot decode state record")
	}

	rec := Record{State: w.State}
	if w.LastModified != nil {
		ts, err := ParseTime(*w.LastModified)
		if err != nil {
			return err
		}
		rec.LastModified = ts
	}

	*r = rec
	return nil
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses the stored form of LastModified. An empty string is the
// zero time, which stands for "nothing stored yet".
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cannot parse stored last modified time %q", s)
	}

	return t.UTC(), nil
}

func formatExpected(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return FormatTime(t)
}
