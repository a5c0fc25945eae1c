package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/recast/internal/models"
	"github.com/jmylchreest/recast/internal/recorder"
	"github.com/jmylchreest/recast/internal/repository"
	"github.com/jmylchreest/recast/pkg/format"
)

// RecordingRemover deletes a finished recording and its capture file.
type RecordingRemover interface {
	Remove(ctx context.Context, id models.ULID) error
}

// RecordingsHandler serves the recordings catalog.
type RecordingsHandler struct {
	repo    repository.RecordingRepository
	remover RecordingRemover
	logger  *slog.Logger
}

// NewRecordingsHandler creates the recordings catalog handler.
func NewRecordingsHandler(repo repository.RecordingRepository, remover RecordingRemover) *RecordingsHandler {
	return &RecordingsHandler{
		repo:    repo,
		remover: remover,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *RecordingsHandler) WithLogger(logger *slog.Logger) *RecordingsHandler {
	h.logger = logger
	return h
}

// Register registers the recordings routes with the API.
func (h *RecordingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      http.MethodGet,
		Path:        "/api/recordings",
		Summary:     "List recordings",
		Description: "Returns the recordings catalog, newest first. Rows still capturing carry status recording.",
		Tags:        []string{"Recordings"},
	}, h.ListRecordings)

	huma.Register(api, huma.Operation{
		OperationID: "getRecording",
		Method:      http.MethodGet,
		Path:        "/api/recordings/{id}",
		Summary:     "Get a recording",
		Tags:        []string{"Recordings"},
	}, h.GetRecording)

	huma.Register(api, huma.Operation{
		OperationID: "deleteRecording",
		Method:      http.MethodDelete,
		Path:        "/api/recordings/{id}",
		Summary:     "Delete a recording",
		Description: "Removes the capture file and the catalog row. Recordings still capturing cannot be deleted.",
		Tags:        []string{"Recordings"},
		Responses: map[string]*huma.Response{
			"409": {Description: "Capture still in progress"},
		},
	}, h.DeleteRecording)
}

// ListRecordingsInput is the input for listing recordings.
type ListRecordingsInput struct {
	Status string `query:"status" doc:"Filter by status: recording, completed, or failed"`
}

// ListRecordingsOutput is the output for listing recordings.
type ListRecordingsOutput struct {
	Body struct {
		Success    bool                `json:"success"`
		Recordings []*models.Recording `json:"recordings"`
		TotalBytes int64               `json:"total_bytes"`
		TotalSize  string              `json:"total_size"`
	}
}

// ListRecordings returns catalog rows, optionally filtered by status,
// with the summed disk usage of the listed captures.
func (h *RecordingsHandler) ListRecordings(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	var (
		rows []*models.Recording
		err  error
	)
	if input.Status != "" {
		rows, err = h.repo.GetByStatus(ctx, models.RecordingStatus(input.Status))
	} else {
		rows, err = h.repo.GetAll(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list recordings", err)
	}

	var total int64
	for _, rec := range rows {
		total += rec.SizeBytes
	}

	resp := &ListRecordingsOutput{}
	resp.Body.Success = true
	resp.Body.Recordings = rows
	resp.Body.TotalBytes = total
	resp.Body.TotalSize = format.Bytes(total)
	return resp, nil
}

// RecordingIDInput carries the recording ID path parameter.
type RecordingIDInput struct {
	ID string `path:"id" doc:"Recording ULID"`
}

// GetRecordingOutput is the output for getting a recording.
type GetRecordingOutput struct {
	Body struct {
		Success   bool              `json:"success"`
		Recording *models.Recording `json:"recording"`
	}
}

// GetRecording returns one catalog row.
func (h *RecordingsHandler) GetRecording(ctx context.Context, input *RecordingIDInput) (*GetRecordingOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid recording id")
	}

	rec, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to fetch recording", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound("recording not found")
	}

	resp := &GetRecordingOutput{}
	resp.Body.Success = true
	resp.Body.Recording = rec
	return resp, nil
}

// DeleteRecordingOutput is the output for deleting a recording.
type DeleteRecordingOutput struct {
	Body struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
}

// DeleteRecording removes the capture file and the catalog row.
func (h *RecordingsHandler) DeleteRecording(ctx context.Context, input *RecordingIDInput) (*DeleteRecordingOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid recording id")
	}

	if err := h.remover.Remove(ctx, id); err != nil {
		switch {
		case errors.Is(err, recorder.ErrNotFound):
			return nil, huma.Error404NotFound("recording not found")
		case errors.Is(err, recorder.ErrInProgress):
			return nil, huma.Error409Conflict("recording is still capturing")
		default:
			return nil, huma.Error500InternalServerError("failed to delete recording", err)
		}
	}

	h.logger.Info("recording deleted", "id", input.ID)

	resp := &DeleteRecordingOutput{}
	resp.Body.Success = true
	resp.Body.ID = input.ID
	return resp, nil
}
