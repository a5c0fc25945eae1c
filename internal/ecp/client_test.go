package ecp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/httpclient"
)

// testClient spins up an httptest server and points a client at it.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.Listener.Addr().String())
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare host", "192.168.1.50", "192.168.1.50:8060"},
		{"host with port", "192.168.1.50:9000", "192.168.1.50:9000"},
		{"hostname", "roku-livingroom.local", "roku-livingroom.local:8060"},
		{"scheme stripped", "http://192.168.1.50", "192.168.1.50:8060"},
		{"scheme with port and slash", "http://192.168.1.50:8060/", "192.168.1.50:8060"},
		{"trailing path", "192.168.1.50/anything", "192.168.1.50:8060"},
		{"ipv6", "::1", "[::1]:8060"},
		{"ipv6 with port", "[::1]:8060", "[::1]:8060"},
		{"surrounding whitespace", "  192.168.1.50  ", "192.168.1.50:8060"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("192.168.1.50")

	assert.Equal(t, "192.168.1.50:8060", client.Address())
	assert.NotNil(t, client.http)
	assert.NotNil(t, client.logger)
}

func TestClient_Launch(t *testing.T) {
	var gotMethod, gotPath, gotQuery string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Launch(context.Background(), "43465"))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/launch/43465", gotPath)
	assert.Empty(t, gotQuery)
}

func TestClient_Launch_RequiresAppID(t *testing.T) {
	client := NewClient("192.168.1.50")

	err := client.Launch(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app id is required")
}

func TestClient_LaunchContent(t *testing.T) {
	t.Run("with content id and media type", func(t *testing.T) {
		var gotPath string
		var gotQuery map[string][]string
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.Query()
			w.WriteHeader(http.StatusOK)
		}))

		err := client.LaunchContent(context.Background(), "43465", "fubo-sports-1", MediaTypeLive)
		require.NoError(t, err)

		assert.Equal(t, "/launch/43465", gotPath)
		assert.Equal(t, "fubo-sports-1", gotQuery["contentId"][0])
		assert.Equal(t, "live", gotQuery["mediaType"][0])
	})

	t.Run("without parameters behaves like a plain launch", func(t *testing.T) {
		var gotQuery string
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusOK)
		}))

		err := client.LaunchContent(context.Background(), "12", "", "")
		require.NoError(t, err)
		assert.Empty(t, gotQuery)
	})
}

func TestClient_Keypress(t *testing.T) {
	var gotMethod, gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Keypress(context.Background(), KeySelect))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/keypress/Select", gotPath)
}

func TestClient_Keypress_RequiresKey(t *testing.T) {
	client := NewClient("192.168.1.50")

	err := client.Keypress(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key is required")
}

func TestClient_Home(t *testing.T) {
	var gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Home(context.Background()))
	assert.Equal(t, "/keypress/Home", gotPath)
}

func TestClient_ErrorStatus(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("App not found"))
	}))

	err := client.Launch(context.Background(), "99999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Contains(t, err.Error(), "App not found")
	assert.NotErrorIs(t, err, ErrDeviceUnreachable)
}

func TestClient_Unreachable(t *testing.T) {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 500 * time.Millisecond
	cfg.RetryAttempts = 1
	cfg.RetryDelay = 10 * time.Millisecond

	// Port 1 refuses connections immediately.
	client := NewClient("127.0.0.1:1", WithHTTPClient(httpclient.New(cfg)))

	err := client.Keypress(context.Background(), KeySelect)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
}

func TestClient_QueryMediaPlayer(t *testing.T) {
	const playerXML = `<?xml version="1.0" encoding="UTF-8" ?>
<player error="false" state="play">
	<plugin bandwidth="19551428 bps" id="43465" name="Fubo"/>
	<format audio="aac" captions="none" container="ts" drm="none" video="hevc"/>
	<buffering current="1000" max="1000" target="0"/>
	<position>116400 ms</position>
	<duration>0 ms</duration>
	<is_live>true</is_live>
</player>`

	var gotMethod, gotPath string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(playerXML))
	}))

	status, err := client.QueryMediaPlayer(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/query/media-player", gotPath)

	assert.Equal(t, StatePlay, status.State)
	assert.Equal(t, 116400*time.Millisecond, status.Position)
	assert.Equal(t, time.Duration(0), status.Duration)
	assert.True(t, status.Live)
	assert.Equal(t, "43465", status.AppID)
	assert.Equal(t, "Fubo", status.AppName)
	assert.False(t, status.Error)
	assert.True(t, status.Playing())
}

func TestClient_QueryMediaPlayer_Idle(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<player error="false" state="none"/>`))
	}))

	status, err := client.QueryMediaPlayer(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateNone, status.State)
	assert.Zero(t, status.Position)
	assert.False(t, status.Playing())
}

func TestClient_QueryMediaPlayer_BadResponse(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))

	_, err := client.QueryMediaPlayer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding media-player response")
}

func TestParseMillis(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{"typical position", "116400 ms", 116400 * time.Millisecond},
		{"zero", "0 ms", 0},
		{"surrounding whitespace", " 42 ms ", 42 * time.Millisecond},
		{"missing unit", "1000", time.Second},
		{"empty", "", 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseMillis(tt.input))
		})
	}
}
