package hzlog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestID assigns a request id with chi's RequestID middleware, echoes it in
// the X-Request-Id response header and adds it to the log context, so every
// record logged with the request context carries "request_id".
func RequestID(next http.Handler) http.Handler {
	inject := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set(middleware.RequestIDHeader, id)

		ctx := ContextWith(r.Context(), slog.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})

	return middleware.RequestID(inject)
}
