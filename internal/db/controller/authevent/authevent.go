// Package authevent stores and queries the authentication audit trail.
package authevent

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/db/models"
)

const defaultLimit = 100

var (
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
	// ErrEventNil is returned when Record gets no event.
	ErrEventNil = errors.New("auth event is nil")
	// ErrKindEmpty is returned when an event has no kind.
	ErrKindEmpty = errors.New("auth event kind cannot be empty")
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	SessionID string
	Subject   string
	Kind      string
	Limit     int // defaults to 100
}

// Record stores an event. ID and CreatedAt are filled when empty.
func Record(db *gorm.DB, ev *models.AuthEvent) error {
	if db == nil {
		return ErrDBNil
	}
	if ev == nil {
		return ErrEventNil
	}
	if ev.Kind == "" {
		return ErrKindEmpty
	}

	return db.Create(ev).Error
}

// List returns the newest events first.
func List(db *gorm.DB, f Filter) ([]models.AuthEvent, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query := db.Model(&models.AuthEvent{})

	if f.SessionID != "" {
		query = query.Where("session_id = ?", f.SessionID)
	}
	if f.Subject != "" {
		query = query.Where("subject = ?", f.Subject)
	}
	if f.Kind != "" {
		query = query.Where("kind = ?", f.Kind)
	}

	var events []models.AuthEvent
	result := query.Order("created_at DESC").Limit(limit).Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}

// Prune deletes events created before the cutoff and returns how many.
func Prune(db *gorm.DB, before time.Time) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	result := db.Where("created_at < ?", before).Delete(&models.AuthEvent{})

	return result.RowsAffected, result.Error
}
