package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/recast/internal/observability"
)

// quietPaths are polled continuously by scrapers and DVR clients; logging
// every successful hit would drown the log. Errors on them still log.
var quietPaths = map[string]bool{
	"/metrics":    true,
	"/api/health": true,
}

// responseWriter records what the handler sent: the status code and the
// number of body bytes. A zero status means the handler has not written
// anything yet.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

// statusCode resolves the implicit 200 that net/http sends when a handler
// finishes without ever calling WriteHeader.
func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.status != 0 {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(p)
	rw.bytes += n
	return n, err
}

// Flush forwards to the underlying writer so streaming responses can push
// each chunk to the client through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to chi's response helpers.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func statusLevel(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware logs one line per request, levelled by the response
// status. The request-scoped logger carrying the request ID is also stashed
// in the context for handlers to pick up.
func NewLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := observability.WithRequestID(logger, observability.RequestIDFromContext(r.Context()))
			ctx := observability.ContextWithLogger(r.Context(), reqLogger)

			rw := wrapResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			status := rw.statusCode()
			if quietPaths[r.URL.Path] && status < 400 {
				return
			}

			reqLogger.LogAttrs(ctx, statusLevel(status), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}
