// Package migrations versions the recordings catalog schema. Steps run in
// order inside transactions, and every applied step leaves a row in
// schema_migrations so restarts skip it.
package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/recast/internal/models"
)

// step is one schema change. Versions compare as strings, keep them
// zero-padded.
type step struct {
	version string
	label   string
	run     func(tx *gorm.DB) error
}

// steps lists every schema change in application order. Append only.
var steps = []step{
	{
		version: "0001",
		label:   "recordings catalog",
		run: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Recording{})
		},
	},
}

// appliedStep is a bookkeeping row for one completed step.
type appliedStep struct {
	ID        uint      `gorm:"primarykey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Label     string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (appliedStep) TableName() string { return "schema_migrations" }

// Apply brings the schema up to date. Steps that already ran are skipped,
// so calling it on every startup is safe.
func Apply(ctx context.Context, db *gorm.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if err := db.WithContext(ctx).AutoMigrate(&appliedStep{}); err != nil {
		return fmt.Errorf("preparing schema_migrations: %w", err)
	}

	var done []appliedStep
	if err := db.WithContext(ctx).Find(&done).Error; err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}
	seen := make(map[string]bool, len(done))
	for _, d := range done {
		seen[d.Version] = true
	}

	for _, s := range steps {
		if seen[s.version] {
			continue
		}
		log.InfoContext(ctx, "applying schema step",
			slog.String("version", s.version),
			slog.String("label", s.label),
		)
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.run(tx); err != nil {
				return err
			}
			return tx.Create(&appliedStep{
				Version:   s.version,
				Label:     s.label,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("schema step %s (%s): %w", s.version, s.label, err)
		}
	}
	return nil
}
