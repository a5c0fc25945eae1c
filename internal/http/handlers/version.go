package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/recast/internal/version"
)

// VersionHandler serves build information.
type VersionHandler struct{}

// NewVersionHandler creates a new version handler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// GetVersionInput is the input for the version endpoint.
type GetVersionInput struct{}

// GetVersionOutput is the output for the version endpoint.
type GetVersionOutput struct {
	Body version.Info
}

// Register registers the version route with the API.
func (h *VersionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Get version information",
		Description: "Returns the version, commit, and build date the binary was built with.",
		Tags:        []string{"System"},
	}, h.GetVersion)
}

// GetVersion returns build information.
func (h *VersionHandler) GetVersion(ctx context.Context, input *GetVersionInput) (*GetVersionOutput, error) {
	return &GetVersionOutput{Body: version.GetInfo()}, nil
}
