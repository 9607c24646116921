// Package auth provides the login enforcing middleware of the web application.
//
// For every request that is not public the middleware:
//   - resolves the browser session from its cookie, issuing one when missing
//   - replays a navigation the session manager parked since the last request,
//     e.g. the login redirect raised by the token expiry timer. API routes
//     leave it parked and get the 401 below
//   - stores the current user under auth.CurrentUserLocal
//   - starts a login when there is none, API routes get a 401 instead
//
// Usage:
//
//	app.Use(auth.New(auth.Config{
//	    Registry: registry,
//	    Next:     func(c *fiber.Ctx) bool { return isPublic(c.Path()) },
//	}))
package auth
