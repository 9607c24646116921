package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/adminshell/adminshell/internal/session"
	websession "github.com/adminshell/adminshell/internal/web/session"
)

// FollowNavigation answers the request with the navigation the manager parked.
// A reload redirects to the current URL. Without a parked navigation the
// loading page is rendered, another request is already on its way.
func FollowNavigation(c *fiber.Ctx, nav *websession.Navigator) error {
	target, reload, ok := nav.TakePending()

	switch {
	case !ok:
		return RenderLoading(c)
	case reload:
		return c.Redirect(c.OriginalURL(), fiber.StatusFound)
	default:
		return c.Redirect(target, fiber.StatusFound)
	}
}

// RenderLoading renders the page shown while a login or logout is in progress.
func RenderLoading(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")

	return c.Render(TemplateLoading, fiber.Map{
		"Title":   "Signing in",
		"Message": "Authentication in progress...",
		"Refresh": 2,
	}, BaseLayout)
}

// RenderError renders the terminal error page.
func RenderError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).Render(TemplateError, fiber.Map{
		"Title":    "Authentication error",
		"error":    err.Error(),
		"HomePath": session.HomePath,
	}, BaseLayout)
}
