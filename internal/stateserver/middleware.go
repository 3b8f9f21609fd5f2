package stateserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// observe logs every request and records its status and duration per route.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		metrics.GetOrCreateCounter(fmt.Sprintf(
			`statesync_http_requests_total{method=%q,route=%q,status="%d"}`,
			r.Method, route, m.Code,
		)).Inc()
		metrics.GetOrCreateHistogram(fmt.Sprintf(
			`statesync_http_request_duration_seconds{method=%q,route=%q}`,
			r.Method, route,
		)).Update(m.Duration.Seconds())

		s.l.InfoContext(
			r.Context(),
			"handled",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", m.Code),
			slog.Duration("duration", m.Duration),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.c.AllowOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if s.c.AllowOrigin != "*" {
			h.Add("Vary", "Origin")
		}

		next.ServeHTTP(w, r)
	})
}

func newLimiter(rs RateSpec) *rate.Limiter {
	if rs.Times == 0 {
		return nil
	}
	if rs.Per <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	limit := rate.Limit(float64(rs.Times) / rs.Per.Seconds())
	return rate.NewLimiter(limit, int(rs.Times))
}

func (s *Server) limitUpdates(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
				Code:    codeRateLimited,
				Message: "too many updates, retry later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
