package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/recast/internal/models"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create creates a new recording row.
func (r *recordingRepo) Create(ctx context.Context, recording *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(recording).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// GetByID retrieves a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id models.ULID) (*models.Recording, error) {
	var recording models.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&recording).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by ID: %w", err)
	}
	return &recording, nil
}

// GetAll retrieves all recordings, newest first.
func (r *recordingRepo) GetAll(ctx context.Context) ([]*models.Recording, error) {
	var recordings []*models.Recording
	if err := r.db.WithContext(ctx).Order("started_at DESC").Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("getting all recordings: %w", err)
	}
	return recordings, nil
}

// GetByStatus retrieves recordings in the given status, newest first.
func (r *recordingRepo) GetByStatus(ctx context.Context, status models.RecordingStatus) ([]*models.Recording, error) {
	var recordings []*models.Recording
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("started_at DESC").Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("getting recordings by status: %w", err)
	}
	return recordings, nil
}

// Update updates an existing recording.
func (r *recordingRepo) Update(ctx context.Context, recording *models.Recording) error {
	if err := r.db.WithContext(ctx).Save(recording).Error; err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}
	return nil
}

// Delete deletes a recording row by ID.
func (r *recordingRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error; err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}

// GetFinishedBefore retrieves completed and failed recordings that started
// before the given time.
func (r *recordingRepo) GetFinishedBefore(ctx context.Context, before time.Time) ([]*models.Recording, error) {
	var recordings []*models.Recording
	if err := r.db.WithContext(ctx).
		Where("status IN (?, ?) AND started_at < ?",
			models.RecordingStatusCompleted, models.RecordingStatusFailed, before).
		Order("started_at ASC").
		Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("getting finished recordings: %w", err)
	}
	return recordings, nil
}

// Ensure recordingRepo implements RecordingRepository at compile time.
var _ RecordingRepository = (*recordingRepo)(nil)
