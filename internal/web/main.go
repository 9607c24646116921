package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/adminshell/adminshell/internal/config"
	fiberlogger "github.com/adminshell/adminshell/internal/logger/adapter/fiber"
	"github.com/adminshell/adminshell/internal/metrics"
	"github.com/adminshell/adminshell/internal/session"
	"github.com/adminshell/adminshell/internal/web/handler"
	"github.com/adminshell/adminshell/internal/web/handler/api"
	oidchandler "github.com/adminshell/adminshell/internal/web/handler/auth/oidc"
	"github.com/adminshell/adminshell/internal/web/handler/dashboard"
	"github.com/adminshell/adminshell/internal/web/handler/logout"
	authmw "github.com/adminshell/adminshell/internal/web/middleware/auth"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

const (
	// HealthPath answers load balancer checks.
	HealthPath = "/healthz"

	// MetricsPath serves the prometheus metrics.
	MetricsPath = "/metrics"

	// StaticPath serves the embedded static files.
	StaticPath = "/static"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	reg          *websession.Registry
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for a termination signal and shuts the service down gracefully.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	s.Shutdown()
}

// Shutdown fails the health check, waits for the load balancer and stops the server.
func (s *Service) Shutdown() {
	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	// stop fiber http server
	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown

	if err := s.reg.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close session registry")
	}

	log.Info().Msg("http server was stopped ... good bye...")
}

// Alive reports whether the health check passes.
func (s *Service) Alive() bool {
	return s.alive.Load()
}

// New creates a new web service with the given configuration.
// gatherer backs the metrics endpoint, nil uses the prometheus default registry.
func New(cfg *config.Config, reg *websession.Registry, gatherer prometheus.Gatherer) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if reg == nil {
		panic("registry cannot be nil")
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	httpFS := http.FS(templateEmbedFS{embeddedTemplates})
	templateEngine := html.NewFileSystem(httpFS, ".gohtml")

	// in debug mode, use local filesystem for templates
	if cfg.DevMode {
		templateEngine = html.New("./internal/web/templates", ".gohtml")
		templateEngine.ShouldReload = true

		log.Warn().Msg("debug mode enabled: using local filesystem for templates")
	}

	templateEngine.AddFunc("join", strings.Join)

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
			Views:          templateEngine,
		},
	)

	service := &Service{
		cfg: cfg,
		App: app,
		reg: reg,
	}
	service.alive.Store(true)

	app.Use(fiberlogger.New(fiberlogger.Config{
		Config:        cfg.Log,
		CheckAliveURI: HealthPath,
		SessionLocal:  websession.SessionLocal,
	}))

	// serve embedded static files
	app.Use(StaticPath,
		filesystem.New(
			filesystem.Config{
				Root:       http.FS(embeddedStaticFiles),
				PathPrefix: "static",
				Browse:     cfg.Webserver.BrowseStatic,
			},
		),
	)

	app.Get(HealthPath, service.health)
	app.Get(MetricsPath, adaptor.HTTPHandler(metrics.Handler(gatherer)))

	sessCfg := session.ConfigFromAuth(cfg.Auth)

	app.Use(authmw.New(authmw.Config{
		Registry: reg,
		Next: func(c *fiber.Ctx) bool {
			return isPublic(sessCfg, c.Path())
		},
	}))

	for _, h := range []handler.Service{
		&oidchandler.Handler,
		&logout.Handler,
		&api.Handler,
		&dashboard.Handler,
	} {
		if err := h.Init(app, cfg, reg); err != nil {
			log.Fatal().Err(err).Msg("failed to init handler")
		}
	}

	return service
}

// isPublic lists the routes served without a login on top of the configured ones.
func isPublic(cfg session.Config, path string) bool {
	switch {
	case path == HealthPath, path == MetricsPath, path == api.SessionPath:
		return true
	case path == oidchandler.LoginPath, path == logout.Path:
		return true
	case strings.HasPrefix(path, StaticPath+"/"):
		return true
	default:
		return cfg.IsPublicPath(path)
	}
}

func (s *Service) health(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	return c.SendString("OK")
}
