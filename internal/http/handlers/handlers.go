// Package handlers implements the HTTP surface: the JSON API registered
// through huma and the raw chi media routes that serve transport streams
// and playlists directly.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/jmylchreest/recast/internal/version"
)

// mpegtsContentType is the media type DVR clients expect on stream routes.
const mpegtsContentType = "video/mp2t"

// baseURL reconstructs the externally visible root URL of the service,
// honoring reverse-proxy forwarding headers. Playlist entries carry
// absolute stream URLs, so the address the client reached us on matters.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}

	return fmt.Sprintf("%s://%s", scheme, host)
}

// setStreamHeaders marks the response as an uncacheable live transport
// stream.
func setStreamHeaders(w http.ResponseWriter, receiver, mode string) {
	w.Header().Set("Content-Type", mpegtsContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Receiver", receiver)
	w.Header().Set("X-Stream-Mode", mode)
	w.Header().Set("X-Recast-Version", version.Version)
}
