// Package httpclient wraps net/http with automatic retries, a circuit
// breaker, and transparent response decompression.
//
// Its main consumer is the ECP control path: Roku boxes drop off the
// network routinely, and the breaker turns a dead device into fast
// failures instead of a pile-up of thirty-second timeouts. Callers that
// need byte-exact bodies can switch decompression off.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Sentinel errors callers can match with errors.Is.
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrMaxRetries  = errors.New("max retries exceeded")
)

// acceptEncodings is advertised when decompression is on. The transport's
// own gzip negotiation is bypassed because the header is set explicitly.
const acceptEncodings = "gzip, deflate, br"

// Config tunes retries, the circuit breaker, and request defaults.
type Config struct {
	// Timeout bounds one whole request including body read. UserAgent is
	// applied to requests that do not carry their own.
	Timeout   time.Duration
	UserAgent string

	// RetryAttempts is how many times a failed request is retried, so a
	// value of 2 allows three tries in total. RetryDelay seeds the
	// backoff schedule; each retry waits BackoffMultiplier times longer
	// than the previous one, capped at RetryMaxDelay.
	RetryAttempts     int
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	BackoffMultiplier float64

	// CircuitThreshold consecutive failures open the breaker. While open,
	// calls fail immediately for CircuitTimeout, after which up to
	// CircuitHalfOpenMax probe requests may pass.
	CircuitThreshold   int
	CircuitTimeout     time.Duration
	CircuitHalfOpenMax int

	// EnableDecompression advertises compressed encodings and unwraps
	// the response body. Leave off for byte-exact reads. Logger defaults
	// to slog.Default, BaseClient to an http.Client bounded by Timeout.
	EnableDecompression bool
	Logger              *slog.Logger
	BaseClient          *http.Client
}

// DefaultConfig returns the tuning recast starts from: three retries on
// a doubling one-second backoff, a breaker that opens after five straight
// failures and probes one request at a time, and decompression on.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		RetryAttempts:       3,
		RetryDelay:          time.Second,
		RetryMaxDelay:       30 * time.Second,
		BackoffMultiplier:   2,
		CircuitThreshold:    5,
		CircuitTimeout:      30 * time.Second,
		CircuitHalfOpenMax:  1,
		UserAgent:           "recast-httpclient/1.0",
		EnableDecompression: true,
	}
}

// Client layers retries and a per-client circuit breaker over http.Client.
type Client struct {
	cfg     Config
	base    *http.Client
	breaker *CircuitBreaker
	log     *slog.Logger
}

// New builds a client from cfg, filling the Logger and BaseClient fields
// with defaults when they are nil.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	br := NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax)
	return &Client{cfg: cfg, base: base, breaker: br, log: log}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.request(ctx, http.MethodGet, url, "", nil)
}

// Post issues a POST request. ECP control calls use this with a nil body.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	return c.request(ctx, http.MethodPost, url, contentType, body)
}

func (c *Client) request(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

// Do executes req with breaker gating and retries. The request's own
// context bounds every attempt and the waits between them; requests with
// a body are retried only when the body can be replayed through GetBody.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.EnableDecompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncodings)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt != 0 {
			if !rewind(req) {
				break
			}
			c.log.Debug("retrying request", "attempt", attempt, "url", scrubURL(req.URL))
			if err := c.backoff(req.Context(), attempt); err != nil {
				return nil, err
			}
		}

		resp, retry, err := c.send(req, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	if lastErr == nil {
		return nil, ErrMaxRetries
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

// send makes a single attempt. The retry result tells Do whether the
// failure is worth another try.
func (c *Client) send(req *http.Request, attempt int) (resp *http.Response, retry bool, err error) {
	if !c.breaker.Allow() {
		c.log.Warn("circuit breaker open, request denied",
			"url", scrubURL(req.URL), "state", c.breaker.State())
		return nil, true, ErrCircuitOpen
	}

	start := time.Now()
	resp, err = c.base.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		c.breaker.RecordFailure()
		c.log.Warn("request failed",
			"url", scrubURL(req.URL),
			"method", req.Method,
			"duration", elapsed,
			"attempt", attempt,
			"error", err,
		)
		// Cancellation is terminal, not transient.
		terminal := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		return nil, !terminal, err
	}

	if retryableStatus(resp.StatusCode) {
		resp.Body.Close()
		c.breaker.RecordFailure()
		c.log.Warn("upstream answered with retryable status",
			"url", scrubURL(req.URL),
			"method", req.Method,
			"status", resp.StatusCode,
			"duration", elapsed,
			"attempt", attempt,
		)
		return nil, true, fmt.Errorf("retryable status code: %d", resp.StatusCode)
	}

	// Any settled response means the peer is alive, error statuses
	// included. Those are the caller's problem, not the breaker's.
	c.breaker.RecordSuccess()
	c.log.Debug("request completed",
		"url", scrubURL(req.URL),
		"method", req.Method,
		"status", resp.StatusCode,
		"duration", elapsed,
		"length", resp.ContentLength,
	)

	if c.cfg.EnableDecompression {
		resp.Body = decode(resp, c.log)
	}
	return resp, false, nil
}

// backoff waits before retry number attempt, growing the delay by the
// configured multiplier up to RetryMaxDelay.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.cfg.BackoffMultiplier)
		if delay >= c.cfg.RetryMaxDelay {
			delay = c.cfg.RetryMaxDelay
			break
		}
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rewind restores a consumed request body ahead of a retry. Reports false
// when the body cannot be replayed.
func rewind(req *http.Request) bool {
	if req.Body == nil {
		return true
	}
	if req.GetBody == nil {
		return false
	}
	body, err := req.GetBody()
	if err != nil {
		return false
	}
	req.Body = body
	return true
}

// CircuitState reports the state of this client's breaker.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// retryableStatus reports whether a status signals a transient upstream
// condition.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// decode unwraps a compressed response body. Unknown or broken encodings
// pass through untouched.
func decode(resp *http.Response, log *slog.Logger) io.ReadCloser {
	raw := resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			log.Warn("broken gzip stream, passing body through", "error", err)
			return raw
		}
		return &decodedBody{Reader: zr, raw: raw}
	case "deflate":
		return &decodedBody{Reader: flate.NewReader(raw), raw: raw}
	case "br":
		return &decodedBody{Reader: brotli.NewReader(raw), raw: raw}
	}
	return raw
}

// decodedBody closes both the decoder and the network body beneath it.
type decodedBody struct {
	io.Reader
	raw io.Closer
}

func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.raw.Close()
}

// secretParams are query keys whose values never reach the logs.
var secretParams = map[string]struct{}{
	"password":    {},
	"passwd":      {},
	"pass":        {},
	"pwd":         {},
	"token":       {},
	"api_key":     {},
	"apikey":      {},
	"key":         {},
	"secret":      {},
	"auth":        {},
	"credential":  {},
	"credentials": {},
}

// scrubURL renders u with credential-bearing parts masked. Encoder URLs
// routinely embed tokens in their query strings, and some carry basic-auth
// userinfo too.
func scrubURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	if clean.User != nil {
		clean.User = url.User("***")
	}
	q := clean.Query()
	masked := false
	for key := range q {
		if _, hit := secretParams[strings.ToLower(key)]; hit {
			q.Set(key, "***")
			masked = true
		}
	}
	if masked {
		clean.RawQuery = q.Encode()
	}
	return clean.String()
}
