package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/recast/internal/playlist"
	"github.com/jmylchreest/recast/pkg/m3u"
)

// ReceiverCounter reports how many receivers are configured, which is the
// stream ceiling advertised to DVR clients.
type ReceiverCounter interface {
	Size() int
}

// PlaylistHandler serves the M3U documents DVR clients ingest.
type PlaylistHandler struct {
	lineup LineupProvider
	pool   ReceiverCounter
	logger *slog.Logger
}

// NewPlaylistHandler creates the playlist handler.
func NewPlaylistHandler(lineup LineupProvider, pool ReceiverCounter) *PlaylistHandler {
	return &PlaylistHandler{
		lineup: lineup,
		pool:   pool,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *PlaylistHandler) WithLogger(logger *slog.Logger) *PlaylistHandler {
	h.logger = logger
	return h
}

// Register registers documentation-only operations for the playlist
// routes; RegisterChiRoutes installs the live handlers. The playlists are
// plain text documents, not JSON, so they bypass huma entirely.
func (h *PlaylistHandler) Register(api huma.API) {
	for _, op := range []struct {
		id, path, summary, description string
	}{
		{
			id:      "getGuidePlaylist",
			path:    "/channels.m3u",
			summary: "Guide-data channel playlist",
			description: "Channel playlist with tvc-guide-stationid attributes for clients that " +
				"match guide data by station ID.",
		},
		{
			id:      "getEPGPlaylist",
			path:    "/epg_channels.m3u",
			summary: "EPG channel playlist",
			description: "Channel playlist with tvg-id/tvg-name/tvg-logo attributes for clients " +
				"that match an external XMLTV guide.",
		},
		{
			id:      "getOnDemandPlaylist",
			path:    "/ondemand.m3u",
			summary: "On-demand playlist",
			description: "Single-entry playlist pointing at the session consume URL. Tuning into " +
				"it claims whatever committed session is ready.",
		},
	} {
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodGet,
			Path:        op.path,
			Summary:     op.summary,
			Description: op.description,
			Tags:        []string{"Playlists"},
			Responses: map[string]*huma.Response{
				"200": {
					Description: "Extended M3U playlist",
					Headers: map[string]*huma.Param{
						"Content-Type": {Description: m3u.ContentType},
					},
				},
			},
			SkipValidateBody: true,
		}, h.playlistDocsHandler)
	}
}

// playlistDocsHandler exists only for OpenAPI generation; chi matches the
// raw handlers first.
func (h *PlaylistHandler) playlistDocsHandler(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw chi handlers", nil)
}

// RegisterChiRoutes registers the raw playlist routes. Must be called
// after Register so the chi routes win.
func (h *PlaylistHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/channels.m3u", h.handleGuide)
	router.Get("/epg_channels.m3u", h.handleEPG)
	router.Get("/ondemand.m3u", h.handleOnDemand)
}

func (h *PlaylistHandler) handleGuide(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", m3u.ContentType)
	if err := playlist.WriteGuide(w, baseURL(r), h.lineup.Current().Channels); err != nil {
		h.logger.Error("failed to write guide playlist", "error", err)
	}
}

func (h *PlaylistHandler) handleEPG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", m3u.ContentType)
	if err := playlist.WriteEPG(w, baseURL(r), h.lineup.Current().EPGChannels); err != nil {
		h.logger.Error("failed to write EPG playlist", "error", err)
	}
}

func (h *PlaylistHandler) handleOnDemand(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", m3u.ContentType)
	if err := playlist.WriteOnDemand(w, baseURL(r), h.pool.Size()); err != nil {
		h.logger.Error("failed to write on-demand playlist", "error", err)
	}
}
