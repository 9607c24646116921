// Package api serves the session state to browser scripts.
package api

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
	// SessionPath reports the session, it is reachable without a login.
	SessionPath = handler.RootPath + "api/session"

	// TokenPath returns the access token of the logged-in user.
	TokenPath = handler.RootPath + "api/token"

	// AdminPingPath is an example route restricted to admins.
	AdminPingPath = handler.RootPath + "api/admin/ping"

	// ReportsPath is an example route for managers and every role above.
	ReportsPath = handler.RootPath + "api/reports"

	adminRole   = "admin"
	managerRole = "manager"
)

// SessionResponse is the body of SessionPath.
type SessionResponse struct {
	User            *session.Session `json:"user"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	IsLoading       bool             `json:"isLoading"`
}

// Service is the api handler service.
type Service struct {
	handler.Service
	cfg *config.Config
	reg *websession.Registry
}

// Handler is the api handler.
var Handler = Service{}

// Init initializes the api handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, reg *websession.Registry) error {
	if app == nil || cfg == nil || reg == nil {
		log.Fatal().Msg(handler.ErrNilAppFatalLogMsg)
		return nil
	}

	s.cfg = cfg
	s.reg = reg

	app.Get(SessionPath, s.Session)
	app.Get(TokenPath, s.Token)
	app.Get(AdminPingPath, auth.RequireAnyRole(adminRole), s.AdminPing)
	app.Get(ReportsPath, auth.RequireMinimumRole(Hierarchy(cfg), managerRole), s.Reports)

	return nil
}

// Session reports the session of the browser without starting a login.
func (s *Service) Session(c *fiber.Ctx) error {
	b, err := s.reg.Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	current, err := b.Manager.CurrentUser(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(SessionResponse{
		User:            current,
		IsAuthenticated: b.Manager.IsAuthenticated(c.UserContext()),
		IsLoading:       b.Manager.State() == session.StateRedirecting,
	})
}

// Token returns the access token for calls to backend APIs.
func (s *Service) Token(c *fiber.Ctx) error {
	b, err := s.reg.Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	token, err := b.Manager.AccessToken(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	c.Set(fiber.HeaderCacheControl, "no-store")

	return c.JSON(fiber.Map{"accessToken": token})
}

// AdminPing answers admins only.
func (s *Service) AdminPing(c *fiber.Ctx) error {
	current := auth.SessionFromContext(c)

	return c.JSON(fiber.Map{"pong": true, "sub": current.Subject, "roles": current.Roles})
}

// Reports answers users at or above the manager level.
func (s *Service) Reports(c *fiber.Ctx) error {
	current := auth.SessionFromContext(c)

	return c.JSON(fiber.Map{"sub": current.Subject, "level": Hierarchy(s.cfg).HighestRoleLevel(current.Roles)})
}

// Hierarchy returns the configured role hierarchy or auth.DefaultRoleHierarchy.
func Hierarchy(cfg *config.Config) auth.RoleHierarchy {
	if len(cfg.Auth.RoleHierarchy) == 0 {
		return auth.DefaultRoleHierarchy
	}

	return auth.RoleHierarchy(cfg.Auth.RoleHierarchy)
}
