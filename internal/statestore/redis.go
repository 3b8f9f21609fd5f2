package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

const (
	redisFieldState        = "state"
	redisFieldLastModified = "lastModified"
)

// RedisInput provides configuration for creating a new Redis store.
type RedisInput struct {
	// KeyPrefix namespaces the record key, which is built as
	// "{KeyPrefix}:state:current_state". Defaults to "statesync".
	KeyPrefix string

	// Logger is the logger to use for store operations. If not provided,
	// a no-op logger will be used.
	Logger *slog.Logger

	// RedisClient is the client which will be used to communicate with the redis
	RedisClient *redis.Client
}

// Redis keeps the record in a single redis hash. The conditional write uses
// WATCH on the hash key followed by MULTI/EXEC, so a concurrent commit between
// the check and the write aborts the transaction.
type Redis struct {
	r       *redis.Client
	l       *slog.Logger
	key     string
	metrics *storeMetrics
}

func NewRedis(input RedisInput) (*Redis, error) {
	if input.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	prefix := input.KeyPrefix
	if prefix == "" {
		prefix = "statesync"
	}
	key := fmt.Sprintf("%s:state:%s", prefix, SingletonKey)

	logger := input.Logger
	if logger == nil {
		logger = hzlog.NopLogger()
	}
	logger = logger.With(
		slog.String("component", "infra:redis_store"),
		slog.String("key", key),
	)

	return &Redis{
		r:       input.RedisClient,
		l:       logger,
		key:     key,
		metrics: newStoreMetrics("redis"),
	}, nil
}

func (s *Redis) Get(ctx context.Context) (Record, error) {
	defer s.metrics.GetDuration.UpdateDuration(time.Now())

	vals, err := s.r.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Record{}, s.metrics.observe(errors.Wrap(err, "cannot get record from redis"))
	}

	rec, err := decodeRedisRecord(vals)
	return rec, s.metrics.observe(err)
}

func (s *Redis) CompareAndSwap(ctx context.Context, expected time.Time, next Record) error {
	defer s.metrics.CompareAndSwapDuration.UpdateDuration(time.Now())

	want := formatExpected(expected)

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, s.key, redisFieldLastModified).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return errors.Wrap(err, "cannot read last modified time from redis")
		}

		if current != want {
			return ErrPreconditionFailed
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(
				ctx,
				s.key,
				redisFieldState, string(next.State),
				redisFieldLastModified, FormatTime(next.LastModified),
			)
			return nil
		})

		return err
	}

	err := s.r.Watch(ctx, txf, s.key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPreconditionFailed), errors.Is(err, redis.TxFailedErr):
		s.l.DebugContext(ctx, "conditional write lost", slog.String("expected", want))
		return s.metrics.observe(ErrPreconditionFailed)
	default:
		return s.metrics.observe(errors.Wrap(err, "cannot save record to redis"))
	}
}

func decodeRedisRecord(vals map[string]string) (Record, error) {
	if len(vals) == 0 {
		return Record{}, nil
	}

	lm, err := ParseTime(vals[redisFieldLastModified])
	if err != nil {
		return Record{}, err
	}

	return Record{State: []byte(vals[redisFieldState]), LastModified: lm}, nil
}
