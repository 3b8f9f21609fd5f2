package statesvc

import (
	"bytes"
	"encoding/json"
	"time"
)

// UpdateRequest is a validated POST /state body.
type UpdateRequest struct {
	State        json.RawMessage
	LastModified time.Time
}

// zone-less ISO-8601, read as UTC. Fractional seconds are accepted by
// time.Parse even though the layout does not mention them.
const isoNoZoneLayout = "2006-01-02T15:04:05"

// Years a stored RFC 3339 timestamp can represent.
const (
	minYear = 0
	maxYear = 9999
)

// ParseUpdateRequest validates the body of an update. The body must be a JSON
// object with a non-null "state" and a "lastModified" that is either an
// ISO-8601 string or a number of milliseconds since the Unix epoch.
func ParseUpdateRequest(body []byte) (UpdateRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return UpdateRequest{}, validationError("empty body")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return UpdateRequest{}, validationError("body must be a JSON object: %s", err)
	}

	state, ok := fields["state"]
	if !ok || isNull(state) {
		return UpdateRequest{}, validationError(`missing required field "state"`)
	}

	rawLM, ok := fields["lastModified"]
	if !ok || isNull(rawLM) {
		return UpdateRequest{}, validationError(`missing required field "lastModified"`)
	}

	lm, err := parseLastModified(rawLM)
	if err != nil {
		return UpdateRequest{}, err
	}
	if y := lm.Year(); y < minYear || y > maxYear {
		return UpdateRequest{}, validationError(`"lastModified" year %d is outside [%d, %d]`, y, minYear, maxYear)
	}

	return UpdateRequest{State: state, LastModified: lm}, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func parseLastModified(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTimestamp(s)
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}

	return time.Time{}, validationError(`"lastModified" must be an ISO-8601 string or epoch milliseconds`)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(isoNoZoneLayout, s, time.UTC); err == nil {
		return t, nil
	}

	return time.Time{}, validationError(`cannot parse "lastModified" %q as ISO-8601 timestamp`, s)
}
