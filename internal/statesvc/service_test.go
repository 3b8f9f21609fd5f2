package statesvc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/HazyCorp/statesync/internal/statestore"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

type recordingNotifier struct {
	mu   sync.Mutex
	recs []statestore.Record
}

func (n *recordingNotifier) Publish(rec statestore.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recs = append(n.recs, rec)
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context) (statestore.Record, error) {
	return statestore.Record{}, errors.New("connection refused")
}

func (brokenStore) CompareAndSwap(ctx context.Context, expected time.Time, next statestore.Record) error {
	return errors.New("connection refused")
}

// racingStore lets another writer commit between the service's read and its
// conditional write.
type racingStore struct {
	*statestore.Memory
	once sync.Once
}

func (s *racingStore) CompareAndSwap(ctx context.Context, expected time.Time, next statestore.Record) error {
	s.once.Do(func() {
		rival := statestore.Record{State: json.RawMessage(`"rival"`), LastModified: expected.Add(time.Second)}
		_ = s.Memory.CompareAndSwap(ctx, expected, rival)
	})

	return s.Memory.CompareAndSwap(ctx, expected, next)
}

func update(t *testing.T, svc *Service, body string) (statestore.Record, error) {
	t.Helper()

	req, err := ParseUpdateRequest([]byte(body))
	require.NoError(t, err)

	return svc.UpdateState(context.Background(), req)
}

func TestGetState_EmptyStore(t *testing.T) {
	svc := New(statestore.NewMemory())

	rec, err := svc.GetState(context.Background())
	require.NoError(t, err)
	require.True(t, rec.IsEmpty())

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.JSONEq(t, `{"state":{},"lastModified":null}`, string(data))
}

func TestUpdateState_RoundTrip(t *testing.T) {
	states := []string{
		`{"count":1}`,
		`[1,"two",{"three":3}]`,
		`"scalar"`,
		`42`,
		`false`,
		`{"config":{"sessionDuration":"30","lines":[]}}`,
	}

	for _, st := range states {
		t.Run(st, func(t *testing.T) {
			svc := New(statestore.NewMemory(), WithClock(fixedClock))

			_, err := update(t, svc, `{"state":`+st+`,"lastModified":"2024-01-01T00:00:00Z"}`)
			require.NoError(t, err)

			rec, err := svc.GetState(context.Background())
			require.NoError(t, err)
			require.JSONEq(t, st, string(rec.State))
		})
	}
}

func TestUpdateState_ServerStampsTimestamp(t *testing.T) {
	svc := New(statestore.NewMemory(), WithClock(fixedClock))

	rec, err := update(t, svc, `{"state":{"count":1},"lastModified":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)
	require.True(t, rec.LastModified.Equal(now))
}

func TestUpdateState_CallerAheadOfServerClock(t *testing.T) {
	svc := New(statestore.NewMemory(), WithClock(fixedClock))

	future := now.Add(time.Hour)
	rec, err := update(t, svc, `{"state":1,"lastModified":"`+statestore.FormatTime(future)+`"}`)
	require.NoError(t, err)
	require.False(t, rec.LastModified.Before(future))
}

func TestUpdateState_StaleRejectedAndStoreUnchanged(t *testing.T) {
	svc := New(statestore.NewMemory(), WithClock(fixedClock))

	_, err := update(t, svc, `{"state":{"count":1},"lastModified":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)
	before, err := svc.GetState(context.Background())
	require.NoError(t, err)

	_, err = update(t, svc, `{"state":{"count":2},"lastModified":"2023-01-01T00:00:00Z"}`)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.JSONEq(t, `{"count":1}`, string(conflict.Current.State))

	after, err := svc.GetState(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, string(before.State), string(after.State))
	require.True(t, before.LastModified.Equal(after.LastModified))
}

func TestUpdateState_EqualTimestampAccepted(t *testing.T) {
	svc := New(statestore.NewMemory(), WithClock(fixedClock))

	first, err := update(t, svc, `{"state":1,"lastModified":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)

	second, err := update(t, svc, `{"state":2,"lastModified":"`+statestore.FormatTime(first.LastModified)+`"}`)
	require.NoError(t, err)
	require.False(t, second.LastModified.Before(first.LastModified))
}

func TestUpdateState_NeverRegresses(t *testing.T) {
	clock := now
	svc := New(statestore.NewMemory(), WithClock(func() time.Time { return clock }))

	first, err := update(t, svc, `{"state":1,"lastModified":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)

	// server clock jumps backwards
	clock = now.Add(-time.Hour)
	second, err := update(t, svc, `{"state":2,"lastModified":"`+statestore.FormatTime(first.LastModified)+`"}`)
	require.NoError(t, err)
	require.True(t, second.LastModified.Equal(first.LastModified))
}

func TestUpdateState_FarFutureTokenStaysReadable(t *testing.T) {
	store, err := statestore.NewFile(statestore.FileConfig{Path: filepath.Join(t.TempDir(), "state.json")}, nil)
	require.NoError(t, err)
	svc := New(store, WithClock(fixedClock))

	_, err = ParseUpdateRequest([]byte(`{"state":1,"lastModified":253402300800000}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	rec, err := update(t, svc, `{"state":1,"lastModified":253402300799999}`)
	require.NoError(t, err)
	require.Equal(t, 9999, rec.LastModified.Year())

	got, err := svc.GetState(context.Background())
	require.NoError(t, err)
	require.True(t, got.LastModified.Equal(rec.LastModified))

	// the token handed out is accepted when sent back
	_, err = update(t, svc, `{"state":2,"lastModified":"`+statestore.FormatTime(got.LastModified)+`"}`)
	require.NoError(t, err)
}

func TestUpdateState_LostRaceIsConflict(t *testing.T) {
	store := &racingStore{Memory: statestore.NewMemory()}
	n := &recordingNotifier{}
	svc := New(store, WithClock(fixedClock), WithNotifier(n))

	_, err := update(t, svc, `{"state":"mine","lastModified":"2024-01-01T00:00:00Z"}`)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.JSONEq(t, `"rival"`, string(conflict.Current.State))
	require.Empty(t, n.recs)
}

func TestUpdateState_ConcurrentWritersCommitOnce(t *testing.T) {
	store := statestore.NewMemory()
	svc := New(store, WithClock(fixedClock))

	start, err := update(t, svc, `{"state":0,"lastModified":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)
	token := statestore.FormatTime(start.LastModified)

	// a store that blocks the first readers until both have read, so both
	// writers decide on the same starting record
	gate := &gatedStore{Store: store, readers: 2}
	gate.cond = sync.NewCond(&gate.mu)
	svc = New(gate, WithClock(func() time.Time { return now.Add(time.Minute) }))

	var committed, conflicts atomic.Int64
	var eg errgroup.Group
	for i := range 2 {
		eg.Go(func() error {
			req, err := ParseUpdateRequest([]byte(`{"state":` + strconv.Itoa(i+1) + `,"lastModified":"` + token + `"}`))
			if err != nil {
				return err
			}

			_, err = svc.UpdateState(context.Background(), req)
			var conflict *ConflictError
			switch {
			case err == nil:
				committed.Add(1)
			case errors.As(err, &conflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.EqualValues(t, 1, committed.Load())
	require.EqualValues(t, 1, conflicts.Load())
}

type gatedStore struct {
	statestore.Store

	mu      sync.Mutex
	cond    *sync.Cond
	readers int
}

func (s *gatedStore) Get(ctx context.Context) (statestore.Record, error) {
	rec, err := s.Store.Get(ctx)

	s.mu.Lock()
	if s.readers > 0 {
		s.readers--
		if s.readers == 0 {
			s.cond.Broadcast()
		}
		for s.readers > 0 {
			s.cond.Wait()
		}
	}
	s.mu.Unlock()

	return rec, err
}

func TestUpdateState_NotifiesOnCommit(t *testing.T) {
	n := &recordingNotifier{}
	svc := New(statestore.NewMemory(), WithClock(fixedClock), WithNotifier(n))

	rec, err := update(t, svc, `{"state":{"a":1},"lastModified":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)

	require.Len(t, n.recs, 1)
	require.True(t, n.recs[0].LastModified.Equal(rec.LastModified))

	_, err = update(t, svc, `{"state":{"a":2},"lastModified":"2020-01-01T00:00:00Z"}`)
	require.Error(t, err)
	require.Len(t, n.recs, 1)
}

func TestStoreUnavailable(t *testing.T) {
	svc := New(brokenStore{})

	_, err := svc.GetState(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = update(t, svc, `{"state":1,"lastModified":"2024-01-01T00:00:00Z"}`)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	var unavailable *StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
}
