// Package keyvalue provides the queries of the sqlite session state storage.
package keyvalue

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adminshell/adminshell/internal/db/models"
)

const (
	nameQueryPattern = "name = ?"
)

var (
	// ErrKeyNotFound is returned when a key is missing or expired.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyEmpty is returned when the key is empty.
	ErrKeyEmpty = errors.New("key cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// Get retrieves the entry of key unless it expired before now.
func Get(db *gorm.DB, key string, now time.Time) (*models.KeyValue, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if key == "" {
		return nil, ErrKeyEmpty
	}

	var kv models.KeyValue
	result := db.Where(nameQueryPattern, key).First(&kv)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, result.Error
	}

	if kv.ExpiresAt != 0 && kv.ExpiresAt <= now.Unix() {
		return nil, ErrKeyNotFound
	}

	return &kv, nil
}

// Set creates or replaces the entry of key (upsert operation).
// expiresAt is in unix seconds, 0 never expires.
func Set(db *gorm.DB, key string, value []byte, expiresAt int64) error {
	if db == nil {
		return ErrDBNil
	}
	if key == "" {
		return ErrKeyEmpty
	}

	kv := &models.KeyValue{
		Name:      key,
		Value:     value,
		ExpiresAt: expiresAt,
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(kv).Error
}

// Delete deletes the entry of key. A missing key is not an error.
func Delete(db *gorm.DB, key string) error {
	if db == nil {
		return ErrDBNil
	}
	if key == "" {
		return ErrKeyEmpty
	}

	return db.Where(nameQueryPattern, key).Delete(&models.KeyValue{}).Error
}

// DeleteExpired removes every entry that expired before now and returns how many.
func DeleteExpired(db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	result := db.Where("expires_at <> 0 AND expires_at <= ?", now.Unix()).Delete(&models.KeyValue{})

	return result.RowsAffected, result.Error
}

// DeleteAll removes every entry.
func DeleteAll(db *gorm.DB) error {
	if db == nil {
		return ErrDBNil
	}

	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.KeyValue{}).Error
}
