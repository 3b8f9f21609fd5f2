package stateserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"golang.org/x/time/rate"

	"github.com/HazyCorp/statesync/internal/broadcast"
	"github.com/HazyCorp/statesync/internal/statestore"
	"github.com/HazyCorp/statesync/internal/statesvc"
	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

const (
	codeValidation       = "validation_error"
	codeConflict         = "conflict"
	codeStoreUnavailable = "store_unavailable"
	codeRateLimited      = "rate_limited"
	codeTooLarge         = "too_large"
	codeInternal         = "internal_error"
)

type errorResponse struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Current *statestore.Record `json:"current,omitempty"`
}

type Server struct {
	c       Config
	svc     *statesvc.Service
	hub     *broadcast.Hub
	l       *slog.Logger
	limiter *rate.Limiter

	router   chi.Router
	upgrader websocket.Upgrader
	srv      *http.Server
}

// New builds the HTTP surface. hub may be nil, then /state/ws is not served.
func New(c Config, svc *statesvc.Service, hub *broadcast.Hub, l *slog.Logger) *Server {
	if l == nil {
		l = hzlog.NopLogger()
	}

	s := &Server{
		c:       c,
		svc:     svc,
		hub:     hub,
		l:       l.With(slog.String("component", "stateserver")),
		limiter: newLimiter(c.UpdateRate),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = s.routes()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", c.Port),
		Handler: s.router,
	}

	return s
}

type ServerIn struct {
	fx.In

	Config  Config
	Service *statesvc.Service
	Hub     *broadcast.Hub `optional:"true"`
	Logger  *slog.Logger
}

func NewFX(in ServerIn, lc fx.Lifecycle) *Server {
	s := New(in.Config, in.Service, in.Hub, in.Logger)
	lc.Append(fx.StartStopHook(
		func() {
			s.l.Info("state server is listening", slog.String("addr", s.srv.Addr))
			go func() {
				if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.l.Error("state server stopped", hzlog.Error(err))
				}
			}()
		},
		func(ctx context.Context) error {
			return s.srv.Shutdown(ctx)
		},
	))

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		hzlog.RequestID,
		s.observe,
		middleware.Recoverer,
		s.cors,
	)

	r.Options("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/healthz", s.healthz)

	if s.hub != nil {
		r.Get("/state/ws", s.subscribe)
	}

	r.Group(func(r chi.Router) {
		if s.c.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.c.RequestTimeout))
		}

		r.Get("/state", s.getState)
		r.With(s.limitUpdates).Post("/state", s.updateState)
	})

	return r
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetState(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) updateState(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if s.c.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.c.MaxBodyBytes)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{
				Code:    codeTooLarge,
				Message: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}

		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Code:    codeValidation,
			Message: "cannot read request body",
		})
		return
	}

	req, err := statesvc.ParseUpdateRequest(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := s.svc.UpdateState(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, rec)
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	// subscribe before reading, a commit in between is then queued
	sub := s.hub.Subscribe()

	rec, err := s.svc.GetState(r.Context())
	if err != nil {
		sub.Cancel()
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Cancel()
		// upgrader already replied to the client
		s.l.WarnContext(r.Context(), "cannot upgrade to websocket", hzlog.Error(err))
		return
	}

	s.hub.Serve(r.Context(), conn, sub, rec)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.GetState(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.c.AllowOrigin == "" || s.c.AllowOrigin == "*" {
		return true
	}

	return r.Header.Get("Origin") == s.c.AllowOrigin
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *statesvc.ValidationError
		conflict    *statesvc.ConflictError
		unavailable *statesvc.StoreUnavailableError
	)

	switch {
	case errors.As(err, &validation):
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Code: codeValidation, Message: validation.Reason})
	case errors.As(err, &conflict):
		current := conflict.Current
		s.writeJSON(w, r, http.StatusConflict, errorResponse{
			Code:    codeConflict,
			Message: conflict.Error(),
			Current: &current,
		})
	case errors.As(err, &unavailable):
		s.l.ErrorContext(r.Context(), "state store unavailable", hzlog.Error(err))
		w.Header().Set("Retry-After", "1")
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{
			Code:    codeStoreUnavailable,
			Message: statesvc.ErrStoreUnavailable.Error(),
		})
	default:
		s.l.ErrorContext(r.Context(), "unexpected error", hzlog.Error(err))
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.l.ErrorContext(r.Context(), "cannot encode response", hzlog.Error(err))
		http.Error(w, `{"code":"internal_error","message":"cannot encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
