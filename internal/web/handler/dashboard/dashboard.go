// Package dashboard renders the home page and the missing role page.
package dashboard

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/adminshell/adminshell/internal/auth"
	"github.com/adminshell/adminshell/internal/config"
	"github.com/adminshell/adminshell/internal/session"
	"github.com/adminshell/adminshell/internal/web/handler"
	"github.com/adminshell/adminshell/internal/web/navigation"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

const (
	// Path is the path to the home page.
	Path = session.HomePath

	// TemplateName is the name of the home template.
	TemplateName = "home"

	// UnauthorizedTemplateName is the name of the missing role template.
	UnauthorizedTemplateName = "unauthorized"
)

// Service is the dashboard handler service.
type Service struct {
	handler.Service
	cfg *config.Config
	reg *websession.Registry
}

// Handler is the dashboard handler.
var Handler = Service{}

// Init initializes the dashboard handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, reg *websession.Registry) error {
	if app == nil || cfg == nil || reg == nil {
		log.Fatal().Msg(handler.ErrNilAppFatalLogMsg)
		return nil
	}

	s.cfg = cfg
	s.reg = reg

	app.Get(Path, s.Get)
	app.Get(session.UnauthorizedPath, s.Unauthorized)

	return nil
}

// Get renders the home page of the logged-in user.
func (s *Service) Get(c *fiber.Ctx) error {
	current := auth.SessionFromContext(c)

	nav := navigation.NewContext(s.cfg.Title, Path).
		AddBreadcrumb("Home", Path, true).
		WithMenu(navigation.DefaultMenu, current)

	return c.Render(TemplateName, fiber.Map{
		"Title":       s.cfg.Title,
		"Navigation":  nav,
		"User":        current,
		"DisplayName": current.DisplayName(),
		"Initials":    current.Initials(),
		"DevMode":     s.cfg.Auth.DevMode,
	}, handler.BaseLayout)
}

// Unauthorized renders the page for users missing a required role.
func (s *Service) Unauthorized(c *fiber.Ctx) error {
	nav := navigation.NewContext("Access denied", session.UnauthorizedPath).
		AddBreadcrumb("Home", Path, false).
		AddBreadcrumb("Access denied", session.UnauthorizedPath, true)

	return c.Status(fiber.StatusForbidden).Render(UnauthorizedTemplateName, fiber.Map{
		"Title":      "Access denied",
		"Navigation": nav,
		"HomePath":   Path,
	}, handler.BaseLayout)
}
