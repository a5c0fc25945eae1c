package middleware

import (
	"net/http"

	"github.com/jmylchreest/recast/internal/metrics"
)

// NewMetricsMiddleware counts every request and every error response. A
// nil metrics value disables counting, which keeps test servers free of
// registry setup.
func NewMetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncRequests()

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			if wrapped.status >= 400 {
				m.IncErrors()
			}
		})
	}
}
