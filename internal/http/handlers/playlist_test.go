package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/pkg/m3u"
)

type fixedSize int

func (s fixedSize) Size() int { return int(s) }

func newPlaylistRouter(lineup *config.Lineup, receivers int) chi.Router {
	h := NewPlaylistHandler(&stubLineup{lineup: lineup}, fixedSize(receivers)).WithLogger(discardLogger())
	router := chi.NewRouter()
	h.RegisterChiRoutes(router)
	return router
}

func playlistLineup() *config.Lineup {
	return &config.Lineup{
		Channels: []config.Channel{
			{ID: "espn", Name: "ESPN", AppID: "12345", StationID: "10179"},
		},
		EPGChannels: []config.Channel{
			{ID: "hbo", Name: "HBO", AppID: "61322", TvgID: "hbo.us", TvgLogo: "http://logos.local/hbo.png"},
		},
	}
}

func TestPlaylistHandler_Guide(t *testing.T) {
	router := newPlaylistRouter(playlistLineup(), 2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels.m3u", nil)
	req.Host = "recast.local:7300"
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, m3u.ContentType, rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "#EXTM3U")
	assert.Contains(t, body, `channel-id="espn"`)
	assert.Contains(t, body, `tvc-guide-stationid="10179"`)
	assert.Contains(t, body, "http://recast.local:7300/stream/espn")
	assert.NotContains(t, body, "hbo", "EPG channels leaked into the guide playlist")
}

func TestPlaylistHandler_EPG(t *testing.T) {
	router := newPlaylistRouter(playlistLineup(), 2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/epg_channels.m3u", nil)
	req.Host = "recast.local:7300"
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tvg-id="hbo.us"`)
	assert.Contains(t, body, `tvg-name="HBO"`)
	assert.Contains(t, body, `tvg-logo="http://logos.local/hbo.png"`)
	assert.Contains(t, body, "http://recast.local:7300/stream/hbo")
	assert.NotContains(t, body, "espn", "guide channels leaked into the EPG playlist")
}

func TestPlaylistHandler_OnDemand(t *testing.T) {
	router := newPlaylistRouter(playlistLineup(), 3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ondemand.m3u", nil)
	req.Host = "recast.local:7300"
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "x-tvh-max-streams=3")
	assert.Contains(t, body, "http://recast.local:7300/session/consume")
}

func TestPlaylistHandler_ForwardedHost(t *testing.T) {
	router := newPlaylistRouter(playlistLineup(), 1)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/channels.m3u", nil)
	req.Host = "10.0.0.7:7300"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "tv.example.com")
	router.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "https://tv.example.com/stream/espn",
		"stream URLs ignore the reverse-proxy forwarding headers")
}
