package statesvc

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/fx"

	"github.com/HazyCorp/statesync/internal/statestore"
	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

// Notifier receives every committed record.
type Notifier interface {
	Publish(rec statestore.Record)
}

type serviceOptions struct {
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
}

type Option interface {
	apply(*serviceOptions)
}

type optionFunc func(o *serviceOptions)

func (f optionFunc) apply(o *serviceOptions) {
	f(o)
}

func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *serviceOptions) { o.logger = l })
}

func WithNotifier(n Notifier) Option {
	return optionFunc(func(o *serviceOptions) { o.notifier = n })
}

// WithClock replaces time.Now as the source of server-side timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *serviceOptions) { o.now = now })
}

// Service implements GetState and UpdateState on top of a Store. It holds no
// state between calls; concurrent updates are arbitrated by the store's
// conditional write.
type Service struct {
	store    statestore.Store
	notifier Notifier
	now      func() time.Time
	l        *slog.Logger
	metrics  *serviceMetrics
}

func New(store statestore.Store, opts ...Option) *Service {
	var o serviceOptions
	for _, opt := range opts {
		opt.apply(&o)
	}

	l := o.logger
	if l == nil {
		l = hzlog.NopLogger()
	}
	now := o.now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:    store,
		notifier: o.notifier,
		now:      now,
		l:        l.With(slog.String("component", "statesvc")),
		metrics:  newServiceMetrics(),
	}
}

type ServiceIn struct {
	fx.In

	Store    statestore.Store
	Notifier Notifier `optional:"true"`
	Logger   *slog.Logger
}

func NewFX(in ServiceIn) *Service {
	opts := []Option{WithLogger(in.Logger)}
	if in.Notifier != nil {
		opts = append(opts, WithNotifier(in.Notifier))
	}

	return New(in.Store, opts...)
}

// GetState returns the current record, or the empty record if nothing was
// written yet.
func (s *Service) GetState(ctx context.Context) (statestore.Record, error) {
	rec, err := s.store.Get(ctx)
	if err != nil {
		return statestore.Record{}, storeUnavailable(errors.Wrap(err, "cannot read state"))
	}

	return rec, nil
}

// UpdateState commits req.State unless req.LastModified is older than the
// stored last modified time. The committed record is stamped by the server
// with the latest of the current time, the caller's token and the stored
// time, so LastModified never moves backwards.
func (s *Service) UpdateState(ctx context.Context, req UpdateRequest) (statestore.Record, error) {
	l := s.l.With(slog.String("caller_last_modified", statestore.FormatTime(req.LastModified)))

	cur, err := s.store.Get(ctx)
	if err != nil {
		s.metrics.Unavailable.Inc()
		return statestore.Record{}, storeUnavailable(errors.Wrap(err, "cannot read current state"))
	}

	if !cur.IsEmpty() && req.LastModified.Before(cur.LastModified) {
		s.metrics.Stale.Inc()
		l.InfoContext(
			ctx,
			"rejected stale update",
			slog.String("stored_last_modified", statestore.FormatTime(cur.LastModified)),
		)
		return statestore.Record{}, &ConflictError{Current: cur}
	}

	next := statestore.Record{
		State: req.State,
		LastModified: lo.MaxBy(
			[]time.Time{s.now().UTC(), req.LastModified.UTC(), cur.LastModified.UTC()},
			func(a, b time.Time) bool { return a.After(b) },
		).Round(0),
	}

	err = s.store.CompareAndSwap(ctx, cur.LastModified, next)
	if errors.Is(err, statestore.ErrPreconditionFailed) {
		s.metrics.LostRace.Inc()

		latest, gerr := s.store.Get(ctx)
		if gerr != nil {
			s.metrics.Unavailable.Inc()
			return statestore.Record{}, storeUnavailable(errors.Wrap(gerr, "cannot re-read state after lost update"))
		}

		l.InfoContext(ctx, "concurrent update committed first")
		return statestore.Record{}, &ConflictError{Current: latest}
	}
	if err != nil {
		s.metrics.Unavailable.Inc()
		return statestore.Record{}, storeUnavailable(errors.Wrap(err, "cannot write state"))
	}

	s.metrics.Committed.Inc()
	l.InfoContext(ctx, "state updated", slog.String("last_modified", statestore.FormatTime(next.LastModified)))

	if s.notifier != nil {
		s.notifier.Publish(next)
	}

	return next, nil
}
