package hzlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(c Config, level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	c.Filter.Infra.level = level

	return slog.New(newComponentFilter(c.Filter.Infra, base)), &buf
}

func TestHandler_InfraLogsBelowLevelSkipped(t *testing.T) {
	c := DefaultConfig()
	l, buf := newTestLogger(c, slog.LevelWarn)

	infra := l.With(slog.String("component", "infra:redis"))
	infra.Info("dialed")
	require.Empty(t, buf.String())

	infra.Warn("slow command")
	require.Contains(t, buf.String(), "slow command")
}

func TestHandler_InfraDisabled(t *testing.T) {
	c := DefaultConfig()
	c.Filter.Infra.Enabled = false
	l, buf := newTestLogger(c, slog.LevelDebug)

	l.Error("boom", slog.String("component", "infra:sqlite"))
	require.Empty(t, buf.String())

	l.Info("handled", slog.String("component", "stateserver"))
	require.Contains(t, buf.String(), "handled")
}

func TestHandler_ComponentOverride(t *testing.T) {
	c := DefaultConfig()
	l, buf := newTestLogger(c, slog.LevelError)

	l = l.With(slog.String("component", "infra:redis")).With(slog.String("component", "statesvc"))
	l.Info("committed")
	require.Contains(t, buf.String(), "committed")
}

func TestHandler_RecordComponentWins(t *testing.T) {
	l, buf := newTestLogger(DefaultConfig(), slog.LevelError)

	l.With(slog.String("component", "infra:redis")).Info("served", slog.String("component", "stateserver"))
	require.Contains(t, buf.String(), "served")

	buf.Reset()
	l.With(slog.String("component", "statesvc")).Info("dialed", slog.String("component", "infra:redis"))
	require.Empty(t, buf.String())
}

func TestHandler_ContextAttrs(t *testing.T) {
	l, buf := newTestLogger(DefaultConfig(), slog.LevelDebug)

	ctx := ContextWith(context.Background(), slog.String("request_id", "abc"))
	l.InfoContext(ctx, "got state")

	require.Contains(t, buf.String(), `"request_id":"abc"`)
}

func TestBuild_UnknownMode(t *testing.T) {
	c := DefaultConfig()
	c.Mode = "xml"

	_, err := Build(c)
	require.Error(t, err)
}
