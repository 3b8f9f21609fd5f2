package stateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/HazyCorp/statesync/internal/statestore"
)

// APIError is any non-2xx answer of the state server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("state server answered %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ConflictError is returned by Put when the server rejected a stale update.
type ConflictError struct {
	Current statestore.Record
}

func (e *ConflictError) Error() string {
	return "state is out of date, stored last modified is " + statestore.FormatTime(e.Current.LastModified)
}

type Client struct {
	base string
	http *http.Client
}

func New(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Get fetches the current record.
func (c *Client) Get(ctx context.Context) (statestore.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/state", nil)
	if err != nil {
		return statestore.Record{}, errors.Wrap(err, "cannot build request")
	}

	return c.do(req)
}

// Put pushes state with lastModified as the concurrency token.
func (c *Client) Put(ctx context.Context, state json.RawMessage, lastModified time.Time) (statestore.Record, error) {
	body, err := json.Marshal(struct {
		State        json.RawMessage `json:"state"`
		LastModified string          `json:"lastModified"`
	}{
		State:        state,
		LastModified: statestore.FormatTime(lastModified),
	})
	if err != nil {
		return statestore.Record{}, errors.Wrap(err, "cannot encode update")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/state", bytes.NewReader(body))
	if err != nil {
		return statestore.Record{}, errors.Wrap(err, "cannot build request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (statestore.Record, error) {
	rsp, err := c.http.Do(req)
	if err != nil {
		return statestore.Record{}, errors.Wrapf(err, "cannot %s %s", req.Method, req.URL)
	}
	defer rsp.Body.Close()

	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return statestore.Record{}, errors.Wrap(err, "cannot read response")
	}

	if rsp.StatusCode != http.StatusOK {
		var e struct {
			Code    string             `json:"code"`
			Message string             `json:"message"`
			Current *statestore.Record `json:"current"`
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return statestore.Record{}, &APIError{StatusCode: rsp.StatusCode, Message: string(data)}
		}
		if rsp.StatusCode == http.StatusConflict && e.Current != nil {
			return statestore.Record{}, &ConflictError{Current: *e.Current}
		}

		return statestore.Record{}, &APIError{StatusCode: rsp.StatusCode, Code: e.Code, Message: e.Message}
	}

	var rec statestore.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return statestore.Record{}, errors.Wrap(err, "cannot decode state record")
	}

	return rec, nil
}
