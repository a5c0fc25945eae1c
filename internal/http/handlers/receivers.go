package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/recast/internal/ecp"
	"github.com/jmylchreest/recast/internal/observability"
	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/pkg/format"
)

// ReceiverHandler exposes manual device control: single keypresses and
// app launches against a named receiver. The session workflow uses these
// to drive the device by hand before committing.
type ReceiverHandler struct {
	pool  *pool.Pool
	fleet *ecp.Fleet
}

// NewReceiverHandler creates the manual device-control handler.
func NewReceiverHandler(p *pool.Pool, fleet *ecp.Fleet) *ReceiverHandler {
	return &ReceiverHandler{
		pool:  p,
		fleet: fleet,
	}
}

// Register registers the receiver control routes with the API.
func (h *ReceiverHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listReceivers",
		Method:      http.MethodGet,
		Path:        "/api/receivers",
		Summary:     "List receivers",
		Description: "Returns every configured receiver with its allocation, session, and keep-alive state.",
		Tags:        []string{"Receivers"},
	}, h.ListReceivers)

	huma.Register(api, huma.Operation{
		OperationID: "receiverKeypress",
		Method:      http.MethodPost,
		Path:        "/api/receivers/{name}/keypress",
		Summary:     "Send a keypress",
		Description: "Sends one remote-control keypress to the named receiver.",
		Tags:        []string{"Receivers"},
	}, h.Keypress)

	huma.Register(api, huma.Operation{
		OperationID: "receiverLaunch",
		Method:      http.MethodPost,
		Path:        "/api/receivers/{name}/launch",
		Summary:     "Launch an app",
		Description: "Launches an app on the named receiver, optionally deep-linking straight to content.",
		Tags:        []string{"Receivers"},
	}, h.Launch)
}

// ListReceiversInput is the input for listing receivers.
type ListReceiversInput struct{}

// ReceiverView is a pool snapshot row with presentation extras.
type ReceiverView struct {
	pool.Status
	AllocatedAgo string `json:"allocated_ago,omitempty" doc:"How long ago the receiver was allocated"`
}

// ListReceiversOutput is the output for listing receivers.
type ListReceiversOutput struct {
	Body struct {
		Success   bool           `json:"success"`
		Receivers []ReceiverView `json:"receivers"`
	}
}

// ListReceivers returns the receiver table.
func (h *ReceiverHandler) ListReceivers(ctx context.Context, input *ListReceiversInput) (*ListReceiversOutput, error) {
	snapshot := h.pool.Snapshot()
	views := make([]ReceiverView, 0, len(snapshot))
	for _, st := range snapshot {
		view := ReceiverView{Status: st}
		if st.AllocatedAt != nil {
			view.AllocatedAgo = format.RelativeTime(*st.AllocatedAt)
		}
		views = append(views, view)
	}

	resp := &ListReceiversOutput{}
	resp.Body.Success = true
	resp.Body.Receivers = views
	return resp, nil
}

// KeypressInput is the input for a manual keypress.
type KeypressInput struct {
	Name string `path:"name" doc:"Receiver name"`
	Body struct {
		Key string `json:"key" doc:"Remote-control key, e.g. Home, Select, Up"`
	}
}

// ControlOutput is the output for manual control operations.
type ControlOutput struct {
	Body struct {
		Success  bool   `json:"success"`
		Receiver string `json:"receiver"`
	}
}

// Keypress sends one key to the receiver.
func (h *ReceiverHandler) Keypress(ctx context.Context, input *KeypressInput) (*ControlOutput, error) {
	if input.Body.Key == "" {
		return nil, huma.Error400BadRequest("key is required")
	}

	control, err := h.controlAddress(input.Name)
	if err != nil {
		return nil, err
	}

	if err := h.fleet.Client(control).Keypress(ctx, input.Body.Key); err != nil {
		return nil, h.deviceError(ctx, input.Name, "keypress", err)
	}

	resp := &ControlOutput{}
	resp.Body.Success = true
	resp.Body.Receiver = input.Name
	return resp, nil
}

// LaunchInput is the input for a manual app launch.
type LaunchInput struct {
	Name string `path:"name" doc:"Receiver name"`
	Body struct {
		AppID     string `json:"app_id" doc:"App to launch"`
		ContentID string `json:"content_id,omitempty" doc:"Deep-link content ID"`
		MediaType string `json:"media_type,omitempty" doc:"Deep-link media type"`
	}
}

// Launch starts an app on the receiver, deep-linking when a content ID is
// given.
func (h *ReceiverHandler) Launch(ctx context.Context, input *LaunchInput) (*ControlOutput, error) {
	if input.Body.AppID == "" {
		return nil, huma.Error400BadRequest("app_id is required")
	}

	control, err := h.controlAddress(input.Name)
	if err != nil {
		return nil, err
	}

	client := h.fleet.Client(control)
	if input.Body.ContentID != "" {
		err = client.LaunchContent(ctx, input.Body.AppID, input.Body.ContentID, input.Body.MediaType)
	} else {
		err = client.Launch(ctx, input.Body.AppID)
	}
	if err != nil {
		return nil, h.deviceError(ctx, input.Name, "launch", err)
	}

	resp := &ControlOutput{}
	resp.Body.Success = true
	resp.Body.Receiver = input.Name
	return resp, nil
}

// controlAddress resolves a receiver name to its device-control address.
func (h *ReceiverHandler) controlAddress(name string) (string, error) {
	for _, st := range h.pool.Snapshot() {
		if st.Name == name {
			return st.Control, nil
		}
	}
	return "", huma.Error404NotFound("unknown receiver " + name)
}

// deviceError logs a failed control call through the request-scoped logger
// so the line carries the request ID, then maps the failure to an HTTP
// error.
func (h *ReceiverHandler) deviceError(ctx context.Context, name, op string, err error) error {
	observability.LoggerFromContext(ctx).Warn("manual device control failed",
		"receiver", name,
		"operation", op,
		"error", err)
	if errors.Is(err, ecp.ErrDeviceUnreachable) {
		return huma.Error503ServiceUnavailable("receiver unreachable", err)
	}
	return huma.Error500InternalServerError("device control failed", err)
}
