package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForMedia wraps a compression middleware so that the
// MPEG-TS media routes and SSE endpoints bypass it. Transport streams are
// already compressed payloads and both they and SSE depend on per-chunk
// flushing, which compression buffers away.
func SkipCompressionForMedia(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isMediaPath(r.URL.Path) || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
				next.ServeHTTP(w, r)
				return
			}

			compressedHandler.ServeHTTP(w, r)
		})
	}
}

func isMediaPath(path string) bool {
	return strings.HasPrefix(path, "/stream/") || path == "/session/consume"
}
