package metricsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"go.uber.org/fx"

	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

type Config struct {
	Port uint64 `json:"port" yaml:"port"`
}

type Server struct {
	srv *http.Server
	l   *slog.Logger
}

func New(l *slog.Logger, conf Config) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return &Server{
		l: l.With(slog.String("component", "metricsrv")),
		srv: &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", conf.Port),
			Handler: mux,
		},
	}
}

func NewFX(l *slog.Logger, conf Config, lc fx.Lifecycle) *Server {
	s := New(l, conf)
	lc.Append(fx.StartStopHook(
		func() {
			s.l.Info("metrics server is listening", slog.String("addr", s.srv.Addr+"/metrics"))
			go func() {
				if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.l.Error("metrics server stopped", hzlog.Error(err))
				}
			}()
		},
		func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	))

	return s
}

// Handler is exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
