// Package oidc provides the handlers starting and completing the OpenID Connect login.
//
//	GET /auth/login    - send the browser to the identity provider
//	GET /auth/callback - exchange the authorization code and go home
package oidc

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/adminshell/adminshell/internal/auth"
	"github.com/adminshell/adminshell/internal/config"
	"github.com/adminshell/adminshell/internal/session"
	"github.com/adminshell/adminshell/internal/web/handler"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

const (
	// LoginPath is the path to initiate the OIDC login.
	LoginPath = handler.RootPath + "auth/login"

	// CallbackPath is the path for the OIDC callback.
	CallbackPath = session.CallbackPath
)

// Service is the OIDC handler service.
type Service struct {
	handler.Service
	cfg *config.Config
	reg *websession.Registry
}

// Handler is the OIDC handler.
var Handler = Service{}

// Init initializes the OIDC handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, reg *websession.Registry) error {
	if app == nil || cfg == nil || reg == nil {
		log.Fatal().Msg(handler.ErrNilAppFatalLogMsg)
		return nil
	}

	s.cfg = cfg
	s.reg = reg

	app.Get(LoginPath, s.Login)
	app.Get(CallbackPath, s.Callback)

	return nil
}

// Login initiates the OIDC login flow. Logged-in users go home.
func (s *Service) Login(c *fiber.Ctx) error {
	b, err := s.reg.Get(c)
	if err != nil {
		return handler.RenderError(c, fiber.StatusInternalServerError, err)
	}

	current, err := b.Manager.CurrentUser(c.UserContext())
	if err != nil {
		return handler.RenderError(c, fiber.StatusInternalServerError, err)
	}

	if current != nil {
		return c.Redirect(session.HomePath, fiber.StatusFound)
	}

	if err = b.Manager.Login(c.UserContext()); err != nil {
		log.Error().Err(err).Str("session", b.ID).Msg("failed to start login")
		return handler.RenderError(c, fiber.StatusBadGateway, err)
	}

	return handler.FollowNavigation(c, b.Nav)
}

// Callback handles the OIDC callback. A successful login moves the browser to a
// new session id. Stale or expired login attempts start a new login, other
// failures end on the error page.
func (s *Service) Callback(c *fiber.Ctx) error {
	b, err := s.reg.Get(c)
	if err != nil {
		return handler.RenderError(c, fiber.StatusInternalServerError, err)
	}

	params, err := auth.ParseCallback(string(c.Request().URI().QueryString()))
	if err != nil {
		return handler.RenderError(c, fiber.StatusBadRequest, err)
	}

	current, err := b.Manager.HandleCallback(c.UserContext(), params)
	if err != nil {
		if session.IsSessionError(err) {
			log.Info().Err(err).Str("session", b.ID).Msg("stale login attempt, starting a new login")

			if err = b.Manager.Login(c.UserContext()); err != nil {
				return handler.RenderError(c, fiber.StatusBadGateway, err)
			}

			return handler.FollowNavigation(c, b.Nav)
		}

		log.Error().Err(err).Str("session", b.ID).Msg("OIDC authentication failed")

		return handler.RenderError(c, fiber.StatusUnauthorized, err)
	}

	// a login never keeps the id the browser arrived with
	rotated, err := s.reg.Rotate(c, b)
	if err != nil {
		log.Error().Err(err).Str("session", b.ID).Msg("failed to rotate session id")

		if logoutErr := b.Manager.Logout(c.UserContext()); logoutErr != nil {
			log.Warn().Err(logoutErr).Str("session", b.ID).Msg("failed to drop session after rotation failure")
		}

		_, _, _ = b.Nav.TakePending()

		return handler.RenderError(c, fiber.StatusInternalServerError, err)
	}

	log.Info().Str("sub", current.Subject).Str("session", rotated.ID).Msg("User logged in successfully via OIDC")

	return c.Redirect(session.HomePath, fiber.StatusFound)
}
