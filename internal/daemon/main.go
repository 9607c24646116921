// Package daemon wires the configuration into the running service: database,
// session storage, identity provider, metrics, tracing and the web server.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/auth"
	"github.com/adminshell/adminshell/internal/config"
	"github.com/adminshell/adminshell/internal/db/dsn"
	"github.com/adminshell/adminshell/internal/db/models"
	"github.com/adminshell/adminshell/internal/logger/adapter/gormlogger"
	"github.com/adminshell/adminshell/internal/metrics"
	"github.com/adminshell/adminshell/internal/session"
	"github.com/adminshell/adminshell/internal/store"
	"github.com/adminshell/adminshell/internal/tracing"
	"github.com/adminshell/adminshell/internal/web"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

const (
	providerTimeout = 30 * time.Second
	flushTimeout    = 5 * time.Second
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
	storage    store.Storage
	tracing    tracing.ShutdownFunc
}

// Start serves until a termination signal arrives, then shuts down.
func (d *Daemon) Start() error {
	addr := fmt.Sprintf(":%d", d.cfg.Webserver.Port)

	go func() {
		if err := d.webService.Start(addr); err != nil {
			log.Error().Err(err).Msg("web service stopped")
		}
	}()

	log.Info().Str("addr", addr).Bool("dev_mode", d.cfg.Auth.DevMode).Msg("web service started")

	d.webService.WaitShutdown()

	return d.close()
}

func (d *Daemon) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := d.tracing(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}

	return errors.Wrap(d.storage.Close(), "failed to close session storage")
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	storage, err := store.New(cfg, db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), providerTimeout)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.Log.ServiceName)
	if err != nil {
		return nil, err
	}

	sessionMetrics := metrics.New(prometheus.DefaultRegisterer, cfg.Log.ServiceName)
	sessCfg := session.ConfigFromAuth(cfg.Auth)

	opts := websession.Options{
		Config:       sessCfg,
		DevMode:      cfg.Auth.DevMode,
		CookieName:   cfg.Webserver.Session.CookieName,
		CookieTTL:    cfg.Webserver.Session.ExpiryTime,
		Secure:       !cfg.Auth.DevMode,
		IdleTimeout:  cfg.Webserver.Session.IdleTimeout,
		SyncInterval: cfg.Auth.SyncInterval,
		ManagerOptions: []session.Option{
			session.WithReinitPolicy(session.ReinitPolicy(cfg.Auth.ReinitPolicy)),
			session.WithRenewFailurePolicy(session.RenewFailurePolicy(cfg.Auth.RenewFailurePolicy)),
			session.WithEventSink(sessionMetrics),
		},
		DB:     db,
		OnSize: sessionMetrics.SetManagers,
	}

	if cfg.Auth.DevMode {
		log.Warn().Strs("roles", sessCfg.DevModeRoles).Msg("auth dev mode enabled: serving a mock session")
	} else {
		provider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfigFromSession(sessCfg))
		if err != nil {
			return nil, err
		}

		opts.Factory = provider.Factory
	}

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, websession.NewRegistry(storage, opts), prometheus.DefaultGatherer),
		storage:    storage,
		tracing:    shutdownTracing,
	}, nil
}

// openDB connects the configured engine and migrates the tables.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dsn.Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.New()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err = db.AutoMigrate(
		&models.KeyValue{},
		&models.AuthEvent{},
	); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return db, nil
}
