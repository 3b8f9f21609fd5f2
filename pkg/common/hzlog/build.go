package hzlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-slog/otelslog"
	"github.com/pkg/errors"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const infraPrefix = "infra:"

// componentFilter appends context attributes to records and applies the
// infra filter to records of "infra:" components. A component set on the
// record or in the context wins over the one set with With.
type componentFilter struct {
	slog.Handler

	infra   InfraFilter
	isInfra bool
}

func newComponentFilter(infra InfraFilter, h slog.Handler) *componentFilter {
	return &componentFilter{Handler: h, infra: infra}
}

// infraComponent reports whether attrs name a component and whether that
// component is an infra one.
func infraComponent(attrs []slog.Attr) (found, infra bool) {
	for _, a := range attrs {
		if a.Key != "component" {
			continue
		}
		if a.Value.Kind() != slog.KindString {
			return true, false
		}

		return true, strings.HasPrefix(a.Value.String(), infraPrefix)
	}

	return false, false
}

func (h *componentFilter) Handle(ctx context.Context, r slog.Record) error {
	ctxAttrs := getAttrs(ctx)

	recAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		recAttrs = append(recAttrs, a)
		return true
	})

	isInfra := h.isInfra
	if found, infra := infraComponent(recAttrs); found {
		isInfra = infra
	} else if found, infra := infraComponent(ctxAttrs); found {
		isInfra = infra
	}

	if isInfra && (!h.infra.Enabled || r.Level < h.infra.level) {
		return nil
	}

	r.AddAttrs(ctxAttrs...)
	return h.Handler.Handle(ctx, r)
}

func (h *componentFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &componentFilter{Handler: h.Handler.WithAttrs(attrs), infra: h.infra, isInfra: h.isInfra}
	if found, infra := infraComponent(attrs); found {
		next.isInfra = infra
	}

	return next
}

func (h *componentFilter) WithGroup(name string) slog.Handler {
	return &componentFilter{Handler: h.Handler.WithGroup(name), infra: h.infra, isInfra: h.isInfra}
}

// Build creates the process logger and installs it as slog's default.
// Records go through the component filter into zap, wrapped by otelslog so
// that trace and span ids of the context are attached.
func Build(c Config) (*slog.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse level")
	}

	zapLogger, err := buildZap(lvl, c.Mode)
	if err != nil {
		return nil, err
	}

	infraLevel := c.Filter.Infra.Level
	if infraLevel == "" {
		infraLevel = c.Level
	}
	infraLvl, err := zapcore.ParseLevel(infraLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse infra level %s", infraLevel)
	}
	infra := c.Filter.Infra
	infra.level = zapLevelToSlogLevel(infraLvl)

	base := slogzap.Option{Level: zapLevelToSlogLevel(lvl), Logger: zapLogger}.NewZapHandler()
	l := slog.New(otelslog.NewHandler(newComponentFilter(infra, base)))
	slog.SetDefault(l)

	return l, nil
}

func buildZap(lvl zapcore.Level, mode string) (*zap.Logger, error) {
	zapC := zap.NewProductionConfig()
	zapC.Level.SetLevel(lvl)
	zapC.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zapC.OutputPaths = []string{"stdout"}

	switch mode {
	case "", "json":
		zapC.Encoding = "json"
	case "console":
		zapC.Encoding = "console"
	default:
		return nil, errors.Errorf("unknown logging mode %q, expected json or console", mode)
	}

	zapLogger, err := zapC.Build()
	if err != nil {
		return nil, errors.Wrap(err, "cannot build zap logger")
	}

	return zapLogger, nil
}

func zapLevelToSlogLevel(lvl zapcore.Level) slog.Level {
	for slogLvl, zapLvl := range slogzap.LogLevels {
		if zapLvl == lvl {
			return slogLvl
		}
	}

	panic(fmt.Sprintf("zap level %s has no slog counterpart", lvl))
}
