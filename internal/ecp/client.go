// Package ecp speaks the Roku External Control Protocol: plain HTTP on
// port 8060 for launching apps, injecting remote keypresses, and querying
// playback state. Calls go through the resilient HTTP client so a dead
// device trips a circuit breaker instead of stalling every caller behind
// connect timeouts.
package ecp

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/recast/internal/httpclient"
	"github.com/jmylchreest/recast/internal/observability"
	"github.com/jmylchreest/recast/internal/version"
)

// Default configuration values.
const (
	// DefaultPort is the fixed ECP port on Roku devices.
	DefaultPort = "8060"

	// DefaultTimeout bounds a single control call. Device control has to
	// fail fast: a tuning sequence cannot wait half a minute to learn the
	// device is gone.
	DefaultTimeout = 3 * time.Second

	defaultRetryAttempts = 2
	defaultRetryDelay    = 250 * time.Millisecond
	defaultRetryMaxDelay = 1 * time.Second

	// Endpoint paths.
	pathLaunch           = "/launch/"
	pathKeypress         = "/keypress/"
	pathQueryMediaPlayer = "/query/media-player"

	// Deep-link query parameter names.
	paramContentID = "contentId"
	paramMediaType = "mediaType"

	maxErrorBodyReadSize = 1024
)

// Remote keys recast sends by name. Anything else (volume keys, Lit_*
// literals, ...) passes through Keypress unchanged.
const (
	KeyHome   = "Home"
	KeyBack   = "Back"
	KeySelect = "Select"
	KeyUp     = "Up"
	KeyDown   = "Down"
	KeyLeft   = "Left"
	KeyRight  = "Right"
	KeyPlay   = "Play"
)

// Deep-link media types commonly accepted by Roku apps.
const (
	MediaTypeLive    = "live"
	MediaTypeMovie   = "movie"
	MediaTypeEpisode = "episode"
)

// Media player states reported by the device.
const (
	StateNone   = "none"
	StateOpen   = "open"
	StateBuffer = "buffer"
	StatePlay   = "play"
	StatePause  = "pause"
)

// ErrDeviceUnreachable marks transport-level failures: connection refused,
// timeouts, or an open circuit breaker. Callers use it to distinguish a
// dead device from a device that answered with an error status.
var ErrDeviceUnreachable = errors.New("device unreachable")

// Client controls a single Roku device over ECP.
type Client struct {
	address string
	timeout time.Duration
	http    *httpclient.Client
	logger  *slog.Logger
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithLogger sets a structured logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout overrides the per-call timeout. Ignored when WithHTTPClient
// supplies a fully configured client, and when non-positive.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying resilient HTTP client. Sharing
// one client between devices also shares its circuit breaker, so this is
// intended for tests and single-device tools.
func WithHTTPClient(client *httpclient.Client) ClientOption {
	return func(c *Client) {
		c.http = client
	}
}

// NewClient creates a client for the device at address. The address may be
// a bare host or host:port; the default ECP port is applied when none is
// given.
func NewClient(address string, opts ...ClientOption) *Client {
	c := &Client{
		address: NormalizeAddress(address),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = c.timeout
		cfg.RetryAttempts = defaultRetryAttempts
		cfg.RetryDelay = defaultRetryDelay
		cfg.RetryMaxDelay = defaultRetryMaxDelay
		cfg.UserAgent = version.UserAgent()
		cfg.Logger = c.logger
		c.http = httpclient.New(cfg)
	}

	return c
}

// NormalizeAddress converts a configured control address into host:port
// form: schemes and paths are stripped, and the default ECP port is
// appended when the address carries none.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "http://")
	address = strings.TrimPrefix(address, "https://")
	if i := strings.IndexByte(address, '/'); i >= 0 {
		address = address[:i]
	}
	if address == "" {
		return address
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, DefaultPort)
	}
	return address
}

// Address returns the normalized host:port this client controls.
func (c *Client) Address() string {
	return c.address
}

// CircuitState reports the state of the device's circuit breaker.
func (c *Client) CircuitState() httpclient.CircuitState {
	return c.http.CircuitState()
}

// Launch starts an app on the device.
func (c *Client) Launch(ctx context.Context, appID string) error {
	if appID == "" {
		return fmt.Errorf("app id is required")
	}

	c.logger.DebugContext(ctx, "launching app", "device", c.address, "app_id", appID)
	return c.post(ctx, pathLaunch+url.PathEscape(appID))
}

// LaunchContent deep links into an app, asking it to start playing the
// given content directly. Empty parameters are omitted from the request.
func (c *Client) LaunchContent(ctx context.Context, appID, contentID, mediaType string) error {
	if appID == "" {
		return fmt.Errorf("app id is required")
	}

	params := url.Values{}
	if contentID != "" {
		params.Set(paramContentID, contentID)
	}
	if mediaType != "" {
		params.Set(paramMediaType, mediaType)
	}

	path := pathLaunch + url.PathEscape(appID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	c.logger.DebugContext(ctx, "launching app with content",
		"device", c.address,
		"app_id", appID,
		"content_id", contentID,
		"media_type", mediaType)
	return c.post(ctx, path)
}

// Keypress sends a single remote key to the device.
func (c *Client) Keypress(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	c.logger.Log(ctx, observability.LevelTrace, "sending keypress", "device", c.address, "key", key)
	return c.post(ctx, pathKeypress+url.PathEscape(key))
}

// Home returns the device to the home screen.
func (c *Client) Home(ctx context.Context) error {
	return c.Keypress(ctx, KeyHome)
}

// MediaPlayerStatus is the parsed result of a media-player query.
type MediaPlayerStatus struct {
	// State is the player state reported by the device ("none", "play",
	// "pause", "buffer", ...).
	State string
	// Position is the playback position within the current content.
	Position time.Duration
	// Duration is the content length; zero for live streams.
	Duration time.Duration
	// Live reports whether the device considers the content a live stream.
	Live bool
	// AppID and AppName identify the app rendering the content.
	AppID   string
	AppName string
	// Error reports the player's error attribute.
	Error bool
}

// Playing reports whether the device is actively rendering content.
func (s *MediaPlayerStatus) Playing() bool {
	return s.State == StatePlay
}

// mediaPlayerXML mirrors the device's media-player response document.
type mediaPlayerXML struct {
	XMLName xml.Name `xml:"player"`
	Error   string   `xml:"error,attr"`
	State   string   `xml:"state,attr"`
	Plugin  struct {
		ID   string `xml:"id,attr"`
		Name string `xml:"name,attr"`
	} `xml:"plugin"`
	Position string `xml:"position"`
	Duration string `xml:"duration"`
	IsLive   string `xml:"is_live"`
}

// QueryMediaPlayer asks the device what its media player is doing. Used to
// verify that a tune actually produced playback.
func (c *Client) QueryMediaPlayer(ctx context.Context) (*MediaPlayerStatus, error) {
	resp, err := c.http.Get(ctx, c.endpoint(pathQueryMediaPlayer))
	if err != nil {
		return nil, c.unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyReadSize))
		return nil, fmt.Errorf("device %s: unexpected status %d: %s", c.address, resp.StatusCode, body)
	}

	var player mediaPlayerXML
	if err := xml.NewDecoder(resp.Body).Decode(&player); err != nil {
		return nil, fmt.Errorf("decoding media-player response: %w", err)
	}

	return &MediaPlayerStatus{
		State:    player.State,
		Position: parseMillis(player.Position),
		Duration: parseMillis(player.Duration),
		Live:     strings.EqualFold(strings.TrimSpace(player.IsLive), "true"),
		AppID:    player.Plugin.ID,
		AppName:  player.Plugin.Name,
		Error:    strings.EqualFold(strings.TrimSpace(player.Error), "true"),
	}, nil
}

// post issues an ECP command. ECP commands carry no request body and
// return no meaningful response body.
func (c *Client) post(ctx context.Context, path string) error {
	resp, err := c.http.Post(ctx, c.endpoint(path), "", nil)
	if err != nil {
		return c.unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyReadSize))
		return fmt.Errorf("device %s: unexpected status %d: %s", c.address, resp.StatusCode, body)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) endpoint(path string) string {
	return "http://" + c.address + path
}

// unreachable tags transport-level failures so callers can match on
// ErrDeviceUnreachable.
func (c *Client) unreachable(err error) error {
	return fmt.Errorf("%s: %w: %v", c.address, ErrDeviceUnreachable, err)
}

// parseMillis parses durations as the device reports them: "116400 ms".
func parseMillis(s string) time.Duration {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "ms"))
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
