package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/adminshell/adminshell/internal/auth"
	"github.com/adminshell/adminshell/internal/web/handler"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

const (
	// BrowserLocal is the fiber.Locals key holding the *websession.Browser of the request.
	BrowserLocal = "Browser"

	// APIPrefix marks routes answered with 401 instead of a login redirect.
	APIPrefix = "/api/"
)

// Config of the auth middleware.
type Config struct {
	// Next defines a function to skip this middleware when returned true.
	// Public paths are skipped this way.
	Next func(c *fiber.Ctx) bool

	// Registry resolves the browser of a request.
	Registry *websession.Registry
}

// New creates the middleware checking for user authentication.
// Unauthenticated requests start a login, an authenticated session is stored
// under auth.CurrentUserLocal.
func New(cfg Config) fiber.Handler {
	if cfg.Registry == nil {
		panic("auth middleware: registry cannot be nil")
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		b, err := cfg.Registry.Get(c)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve browser session")
			return handler.RenderError(c, fiber.StatusInternalServerError, err)
		}

		c.Locals(BrowserLocal, b)
		api := isAPI(c)

		// navigation raised between two requests, e.g. by the expiry timer.
		// API calls leave it parked for the next page load.
		if target, reload, ok := takePending(b, api); ok {
			if reload {
				target = c.OriginalURL()
			}

			return c.Redirect(target, fiber.StatusFound)
		}

		s, err := b.Manager.CurrentUser(c.UserContext())
		if err != nil {
			log.Warn().Err(err).Str("session", b.ID).Msg("failed to get current user")
		}

		if s != nil {
			c.Locals(auth.CurrentUserLocal, s)
			return c.Next()
		}

		if api {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		if err = b.Manager.Login(c.UserContext()); err != nil {
			log.Error().Err(err).Str("session", b.ID).Msg("failed to start login")
			return handler.RenderError(c, fiber.StatusBadGateway, err)
		}

		return handler.FollowNavigation(c, b.Nav)
	}
}

// BrowserFromContext returns the browser the middleware resolved, or nil.
func BrowserFromContext(c *fiber.Ctx) *websession.Browser {
	b, _ := c.Locals(BrowserLocal).(*websession.Browser)
	return b
}

func takePending(b *websession.Browser, api bool) (target string, reload, ok bool) {
	if api {
		return "", false, false
	}

	return b.Nav.TakePending()
}

func isAPI(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), APIPrefix)
}
