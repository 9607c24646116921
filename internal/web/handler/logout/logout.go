package logout

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/adminshell/adminshell/internal/config"
	"github.com/adminshell/adminshell/internal/session"
	"github.com/adminshell/adminshell/internal/web/handler"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

// Path is the logout path.
const Path = handler.RootPath + "auth/logout"

// Service is the logout handler service.
type Service struct {
	handler.Service
	cfg *config.Config
	reg *websession.Registry
}

// Handler is the logout handler.
var Handler = Service{}

// Init initializes the logout handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, reg *websession.Registry) error {
	if app == nil || cfg == nil || reg == nil {
		log.Fatal().Msg(handler.ErrNilAppFatalLogMsg)
		return nil
	}

	s.cfg = cfg
	s.reg = reg

	// logout route (outside auth middleware protection)
	app.Get(Path, s.Logout)
	app.Post(Path, s.Logout)

	return nil
}

// Logout ends the session and follows the provider sign-out. The local session
// is gone even when the provider is unreachable.
func (s *Service) Logout(c *fiber.Ctx) error {
	b, err := s.reg.Get(c)
	if err != nil {
		return handler.RenderError(c, fiber.StatusInternalServerError, err)
	}

	if err = b.Manager.Logout(c.UserContext()); err != nil {
		log.Error().Err(err).Str("session", b.ID).Msg("logout failed")
	}

	target, _, ok := b.Nav.TakePending()
	if !ok || target == "" {
		target = session.HomePath
	}

	return c.Redirect(target, fiber.StatusFound)
}
