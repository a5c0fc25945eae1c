// Package models defines the GORM entities behind the recordings catalog.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Model carries the fields shared by every catalog entity. Embed it first.
type Model struct {
	ID        ULID      `gorm:"primarykey;type:char(26)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an identifier to rows inserted without one.
func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID.IsZero() {
		m.ID = NewULID()
	}
	return nil
}
