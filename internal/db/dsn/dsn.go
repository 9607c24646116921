// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/glebarez/sqlite"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/config"
)

// Create builds the MySQL Data Source Name from the configuration.
func Create(dbCfg *config.Config) string {
	out := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		dbCfg.DB.User,
		dbCfg.DB.Password,
		dbCfg.DB.Host,
		dbCfg.DB.Port,
		dbCfg.DB.Name,
		dbCfg.DB.Extras,
	)

	return out
}

// Postgres builds the PostgreSQL connection URL from the configuration.
func Postgres(dbCfg *config.Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbCfg.DB.User, dbCfg.DB.Password),
		Host:     dbCfg.DB.Host + ":" + strconv.Itoa(dbCfg.DB.Port),
		Path:     "/" + dbCfg.DB.Name,
		RawQuery: dbCfg.DB.Extras,
	}

	return u.String()
}

// SQLite returns the database file, ":memory:" when none is configured.
func SQLite(dbCfg *config.Config) string {
	if dbCfg.DB.Path == "" {
		return ":memory:"
	}

	return dbCfg.DB.Path
}

// Dialector returns the gorm dialector of the configured engine.
func Dialector(dbCfg *config.Config) (gorm.Dialector, error) {
	switch dbCfg.DB.GormEngine {
	case "", "sqlite":
		return sqlite.Open(SQLite(dbCfg)), nil
	case "mysql":
		return gormmysql.Open(Create(dbCfg)), nil
	case "postgres":
		return gormpostgres.Open(Postgres(dbCfg)), nil
	default:
		return nil, fmt.Errorf("unsupported gorm engine %q", dbCfg.DB.GormEngine)
	}
}
