// Package middleware carries the correlation id that ties together log lines
// from the HTTP layer, the queue consumers, and the chunk pipeline.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

// CorrelationKey locates the request's correlation id inside a context.
const CorrelationKey ctxKey = iota

// CorrelationID tags each request with an id, echoing an inbound
// X-Correlation-ID header or minting a fresh one, and logs the request
// boundaries under it.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}

		ctx := WithCorrelationID(r.Context(), id)
		w.Header().Set("X-Correlation-ID", id)

		start := time.Now()
		slog.Info("handling request", "method", r.Method, "path", r.URL.Path, "correlation_id", id)

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.Info("request served", "method", r.Method, "path", r.URL.Path, "correlation_id", id, "took", time.Since(start))
	})
}

// GetCorrelationID returns the id stored by CorrelationID or
// WithCorrelationID. Contexts that never passed through either report
// "unknown".
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationKey).(string); ok {
		return id
	}
	return "unknown"
}

// WithCorrelationID stores an id directly. The queue consumers use it to
// carry ids arriving in message payloads rather than HTTP headers.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationKey, id)
}
