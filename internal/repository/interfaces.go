// Package repository defines data access interfaces for recast entities.
// All catalog access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/recast/internal/models"
)

// RecordingRepository defines operations for recordings catalog persistence.
type RecordingRepository interface {
	// Create creates a new recording row.
	Create(ctx context.Context, recording *models.Recording) error
	// GetByID retrieves a recording by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Recording, error)
	// GetAll retrieves all recordings, newest first.
	GetAll(ctx context.Context) ([]*models.Recording, error)
	// GetByStatus retrieves recordings in the given status, newest first.
	GetByStatus(ctx context.Context, status models.RecordingStatus) ([]*models.Recording, error)
	// Update updates an existing recording.
	Update(ctx context.Context, recording *models.Recording) error
	// Delete deletes a recording row by ID.
	Delete(ctx context.Context, id models.ULID) error
	// GetFinishedBefore retrieves completed and failed recordings that
	// started before the given time. Used by the retention sweep; rows
	// still recording are never returned.
	GetFinishedBefore(ctx context.Context, before time.Time) ([]*models.Recording, error)
}
