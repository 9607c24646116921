package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthEvent is one entry of the authentication audit trail.
type AuthEvent struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SessionID string    `gorm:"index;size:64"`
	Kind      string    `gorm:"index;size:32"` // login, callback, logout, renew, expired
	Outcome   string    `gorm:"size:16"`       // ok, error, skipped
	Subject   string    `gorm:"index;size:255"`
	Detail    string    `gorm:"size:1024"`
	CreatedAt time.Time `gorm:"index"`
}

// BeforeCreate assigns a random id.
func (e *AuthEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	return nil
}
