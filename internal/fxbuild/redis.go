package fxbuild

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/HazyCorp/statesync/internal/configuration"
	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

// redisLogHook logs redis traffic of the state store. Misses and lost
// WATCH transactions are expected outcomes handled by the store and are not
// logged as failures.
type redisLogHook struct {
	l *slog.Logger
}

func expectedRedisErr(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr)
}

func (h *redisLogHook) done(ctx context.Context, what string, start time.Time, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))
	if err != nil && !expectedRedisErr(err) {
		h.l.LogAttrs(ctx, slog.LevelError, what+" failed", append(attrs, hzlog.Error(err))...)
		return
	}

	h.l.LogAttrs(ctx, slog.LevelDebug, what+" done", attrs...)
}

func (h *redisLogHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network string, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)

		if err == nil {
			h.l.InfoContext(ctx, "connected to redis", slog.String("addr", addr), slog.Duration("elapsed", time.Since(start)))
			return conn, nil
		}

		h.done(ctx, "redis dial", start, err, slog.String("network", network), slog.String("addr", addr))
		return nil, err
	}
}

func (h *redisLogHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.done(ctx, "redis command", start, err, slog.String("cmd", cmd.Name()))

		return err
	}
}

func (h *redisLogHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.done(ctx, "redis transaction", start, err, slog.Int("commands", len(cmds)))

		return err
	}
}

// NewRedisClient connects the redis store backend. The connection is checked
// on start so that a misconfigured address fails the process early.
func NewRedisClient(c configuration.Redis, lc fx.Lifecycle, l *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	})
	client.AddHook(&redisLogHook{l: l.With(slog.String("component", "infra:redis"))})

	lc.Append(fx.StartStopHook(
		func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return errors.Wrapf(err, "cannot reach redis at %s:%d", c.Host, c.Port)
			}

			return nil
		},
		func() error {
			return client.Close()
		},
	))

	return client
}
