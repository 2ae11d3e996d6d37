package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

// actorHeader names the staff member or system acting on a request.
const actorHeader = "X-Actor-ID"

// requestContext copies chi's request id into the observability context,
// records the actor and logs each request.
func requestContext(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			ctx := observability.NewRequestContext(r.Context(), r.Header.Get("X-Correlation-ID"))
			ctx = observability.WithRequestID(ctx, requestID)
			if actor := r.Header.Get(actorHeader); actor != "" {
				ctx = observability.WithActorID(ctx, actor)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestID,
			)
		})
	}
}

// actorID returns the acting user from the request header, or uuid.Nil.
func actorID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(r.Header.Get(actorHeader))
	if err != nil {
		return uuid.Nil
	}
	return id
}
