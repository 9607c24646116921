package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/adminshell/adminshell/internal/session"
)

const (
	// CurrentUserLocal is the fiber.Locals key holding the *session.Session of the request.
	CurrentUserLocal = "CurrentUser"
)

// SessionFromContext returns the session the auth middleware stored, or nil.
func SessionFromContext(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(CurrentUserLocal).(*session.Session)
	return s
}

// requireSession wraps a role check. Requests without a session get a 401,
// authenticated users failing check are sent to the unauthorized page.
func requireSession(check func(s *session.Session) bool, required []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := SessionFromContext(c)
		if s == nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		if !check(s) {
			log.Warn().Str("sub", s.Subject).Strs("roles", s.Roles).Strs("required", required).
				Msg("User lacks required role")

			return c.Redirect(session.UnauthorizedPath, fiber.StatusFound)
		}

		return c.Next()
	}
}

// RequireAnyRole creates Fiber middleware that requires at least one of the given roles.
// Without roles any authenticated user passes.
func RequireAnyRole(roles ...string) fiber.Handler {
	return requireSession(func(s *session.Session) bool {
		return s.HasAnyRole(roles...)
	}, roles)
}

// RequireAllRoles creates Fiber middleware that requires all the given roles.
func RequireAllRoles(roles ...string) fiber.Handler {
	return requireSession(func(s *session.Session) bool {
		return s.HasAllRoles(roles...)
	}, roles)
}

// RequireMinimumRole creates Fiber middleware that requires a role at or above minimum in h.
func RequireMinimumRole(h RoleHierarchy, minimum string) fiber.Handler {
	return requireSession(func(s *session.Session) bool {
		return h.HasMinimumRoleLevel(s, minimum)
	}, []string{minimum})
}

// RequireAuthenticated lets any authenticated user pass.
func RequireAuthenticated() fiber.Handler {
	return RequireAnyRole()
}
