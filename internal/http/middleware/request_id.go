// Package middleware provides the HTTP middleware chain: request IDs,
// request logging, metrics, panic recovery, CORS, and compression that
// stays out of the way of media responses.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jmylchreest/recast/internal/observability"
)

// RequestIDHeader is the HTTP header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID injects a request ID into the context and echoes it in the
// response. An inbound X-Request-ID header is kept so IDs correlate across
// proxies; otherwise a new UUID is generated. Handlers and the logging
// layer read it back through observability.RequestIDFromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := observability.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
