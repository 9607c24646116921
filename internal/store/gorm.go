package store

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/db/controller/keyvalue"
	"github.com/adminshell/adminshell/internal/db/models"
)

// GormStorage keeps the entries in the key_values table of the gorm database.
type GormStorage struct {
	db  *gorm.DB
	now func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

var _ Storage = (*GormStorage)(nil)

// NewGormStorage migrates the table and starts the expiry sweep. gcInterval 0
// disables the sweep, expired entries are never returned either way.
func NewGormStorage(db *gorm.DB, gcInterval time.Duration) (*GormStorage, error) {
	if err := db.AutoMigrate(&models.KeyValue{}); err != nil {
		return nil, err
	}

	s := &GormStorage{
		db:   db,
		now:  time.Now,
		stop: make(chan struct{}),
	}

	if gcInterval > 0 {
		go s.gc(gcInterval)
	}

	return s, nil
}

// Get returns nil without an error for missing and expired keys.
func (s *GormStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}

	kv, err := keyvalue.Get(s.db, key, s.now())
	if errors.Is(err, keyvalue.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return kv.Value, nil
}

// Set stores val. exp 0 never expires. Empty keys and values are ignored.
func (s *GormStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}

	var expiresAt int64
	if exp > 0 {
		expiresAt = s.now().Add(exp).Unix()
	}

	return keyvalue.Set(s.db, key, val, expiresAt)
}

// Delete removes key.
func (s *GormStorage) Delete(key string) error {
	if key == "" {
		return nil
	}

	return keyvalue.Delete(s.db, key)
}

// Reset removes every entry.
func (s *GormStorage) Reset() error {
	return keyvalue.DeleteAll(s.db)
}

// Close stops the expiry sweep. The database connection stays open.
func (s *GormStorage) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	return nil
}

func (s *GormStorage) gc(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			removed, err := keyvalue.DeleteExpired(s.db, s.now())
			if err != nil {
				log.Error().Err(err).Msg("failed to remove expired session state")
				continue
			}

			if removed > 0 {
				log.Debug().Int64("removed", removed).Msg("removed expired session state")
			}
		}
	}
}
