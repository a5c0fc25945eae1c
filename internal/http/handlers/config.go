package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/recast/internal/config"
)

// PoolReloader rebuilds the receiver pool from a new set of specs,
// dropping every allocation and session.
type PoolReloader interface {
	Reload(specs []config.ReceiverSpec)
}

// ConfigHandler serves the lineup document: the receivers, channels, and
// on-demand apps the service is bridging. Replacing it is a stop-the-world
// operation; the pool comes back with every receiver free.
type ConfigHandler struct {
	store  *config.Store
	pool   PoolReloader
	logger *slog.Logger
}

// NewConfigHandler creates the lineup configuration handler.
func NewConfigHandler(store *config.Store, pool PoolReloader) *ConfigHandler {
	return &ConfigHandler{
		store:  store,
		pool:   pool,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *ConfigHandler) WithLogger(logger *slog.Logger) *ConfigHandler {
	h.logger = logger
	return h
}

// Register registers the config routes with the API.
func (h *ConfigHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getConfig",
		Method:      http.MethodGet,
		Path:        "/api/config",
		Summary:     "Get the lineup document",
		Description: "Returns the active receiver/channel lineup.",
		Tags:        []string{"Config"},
	}, h.GetConfig)

	// Durations in the lineup are human-readable strings ("90s", "2m")
	// the reflected JSON schema cannot express; Lineup.Validate is the
	// real gate.
	huma.Register(api, huma.Operation{
		OperationID: "putConfig",
		Method:      http.MethodPut,
		Path:        "/api/config",
		Summary:     "Replace the lineup document",
		Description: "Validates and persists a new lineup, then rebuilds the receiver pool from it. All allocations and sessions are dropped; streams already running finish against the old receivers and release by name.",
		Tags:        []string{"Config"},
		Responses: map[string]*huma.Response{
			"400": {Description: "Lineup failed validation"},
		},
		SkipValidateBody: true,
	}, h.PutConfig)

	huma.Register(api, huma.Operation{
		OperationID: "reloadConfig",
		Method:      http.MethodPost,
		Path:        "/api/config/reload",
		Summary:     "Reload the lineup from disk",
		Description: "Re-reads the lineup file and rebuilds the receiver pool from it.",
		Tags:        []string{"Config"},
	}, h.ReloadConfig)
}

// GetConfigInput is the input for reading the lineup.
type GetConfigInput struct{}

// GetConfigOutput is the output for reading the lineup.
type GetConfigOutput struct {
	Body config.Lineup
}

// GetConfig returns the active lineup document.
func (h *ConfigHandler) GetConfig(ctx context.Context, input *GetConfigInput) (*GetConfigOutput, error) {
	return &GetConfigOutput{Body: *h.store.Current()}, nil
}

// PutConfigInput is the input for replacing the lineup.
type PutConfigInput struct {
	Body config.Lineup
}

// PutConfigOutput is the output for replacing or reloading the lineup.
type PutConfigOutput struct {
	Body struct {
		Success   bool `json:"success"`
		Receivers int  `json:"receivers"`
		Channels  int  `json:"channels"`
	}
}

// PutConfig persists a new lineup and rebuilds the pool from it.
func (h *ConfigHandler) PutConfig(ctx context.Context, input *PutConfigInput) (*PutConfigOutput, error) {
	lineup := input.Body

	if err := h.store.Replace(&lineup); err != nil {
		if errors.Is(err, config.ErrInvalidLineup) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to persist lineup", err)
	}

	h.pool.Reload(lineup.Receivers)

	h.logger.Info("lineup replaced",
		"receivers", len(lineup.Receivers),
		"channels", len(lineup.Channels))

	return h.configResult(&lineup), nil
}

// ReloadConfigInput is the input for reloading the lineup.
type ReloadConfigInput struct{}

// ReloadConfig re-reads the lineup file and rebuilds the pool.
func (h *ConfigHandler) ReloadConfig(ctx context.Context, input *ReloadConfigInput) (*PutConfigOutput, error) {
	lineup, err := h.store.Reload()
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to reload lineup", err)
	}

	h.pool.Reload(lineup.Receivers)

	h.logger.Info("lineup reloaded",
		"receivers", len(lineup.Receivers),
		"channels", len(lineup.Channels))

	return h.configResult(lineup), nil
}

func (h *ConfigHandler) configResult(lineup *config.Lineup) *PutConfigOutput {
	resp := &PutConfigOutput{}
	resp.Body.Success = true
	resp.Body.Receivers = len(lineup.Receivers)
	resp.Body.Channels = len(lineup.Channels) + len(lineup.EPGChannels)
	return resp
}
