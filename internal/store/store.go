// Package store builds the key/value storage that holds the per browser
// session state: OIDC login attempts, the stored user and the handed out token.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/mysql/v2"
	"github.com/gofiber/storage/postgres/v3"
	"github.com/gofiber/storage/redis/v3"
	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/config"
	"github.com/adminshell/adminshell/internal/db/dsn"
)

// Storage is the fiber storage interface every driver implements.
type Storage = fiber.Storage

const defaultGCInterval = 10 * time.Minute

var (
	// ErrUnknownDriver is returned for an unsupported storage driver.
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrNoDatabase is returned when the sqlite driver has no gorm connection.
	ErrNoDatabase = errors.New("sqlite storage needs a database connection")
)

// New creates the storage selected by cfg.Storage.Driver. db is only used by the
// sqlite driver, the sql drivers fall back to the [DB] settings when no
// connection URI is configured.
func New(cfg *config.Config, db *gorm.DB) (Storage, error) {
	sc := cfg.Storage

	gcInterval := sc.GCInterval
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}

	switch sc.Driver {
	case "", "memory":
		return memory.New(memory.Config{GCInterval: gcInterval}), nil
	case "mysql":
		uri := sc.ConnectionURI
		if uri == "" {
			uri = dsn.Create(cfg)
		}

		return connect(func() Storage {
			return mysql.New(mysql.Config{
				ConnectionURI: uri,
				Table:         sc.Table,
				GCInterval:    gcInterval,
			})
		})
	case "postgres":
		uri := sc.ConnectionURI
		if uri == "" {
			uri = dsn.Postgres(cfg)
		}

		return connect(func() Storage {
			return postgres.New(postgres.Config{
				ConnectionURI: uri,
				Table:         sc.Table,
				GCInterval:    gcInterval,
			})
		})
	case "redis":
		return connect(func() Storage {
			return redis.New(redis.Config{URL: sc.ConnectionURI})
		})
	case "sqlite":
		if db == nil {
			return nil, ErrNoDatabase
		}

		return NewGormStorage(db, gcInterval)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, sc.Driver)
	}
}

// connect turns the connection panics of the sql and redis drivers into errors.
func connect(open func() Storage) (s Storage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to open session storage: %v", r)
		}
	}()

	return open(), nil
}
