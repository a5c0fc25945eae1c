package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// preflightMaxAge is how long browsers may cache an OPTIONS answer.
const preflightMaxAge = 24 * time.Hour

// CORS returns a middleware that answers cross-origin requests from the
// given origins. DVR clients and the dashboard typically live on another
// host, so an empty list falls back to allowing any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	c := newCORS(origins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				c.allowOrigin(w, origin)
			}
			if r.Method == http.MethodOptions {
				c.preflight(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cors struct {
	origins  []string
	wildcard bool
	methods  string
	headers  string
	exposed  string
}

func newCORS(origins []string) *cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &cors{
		origins:  origins,
		wildcard: len(origins) == 1 && origins[0] == "*",
		methods: strings.Join([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		}, ", "),
		headers: strings.Join([]string{"Accept", "Content-Type", "X-Request-ID"}, ", "),
		exposed: "X-Request-ID",
	}
}

func (c *cors) allowOrigin(w http.ResponseWriter, origin string) {
	if c.wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Expose-Headers", c.exposed)
		return
	}
	for _, o := range c.origins {
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Expose-Headers", c.exposed)
			return
		}
	}
}

func (c *cors) preflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", c.methods)
	h.Set("Access-Control-Allow-Headers", c.headers)
	h.Set("Access-Control-Max-Age", strconv.Itoa(int(preflightMaxAge/time.Second)))
	w.WriteHeader(http.StatusNoContent)
}
