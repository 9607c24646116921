// Package auth implements the OpenID Connect client used by the session managers
// and the role based route protection.
//
// # Provider
//
// OIDCProvider is created once per process. It runs the discovery against the
// configured issuer (for example a Keycloak realm) and keeps the token verifier,
// the OAuth2 configuration and the end session and revocation endpoints.
//
// # Client
//
// Client is the provider client of a single browser. It implements
// session.Client on top of the browser scoped session.Storage:
//   - a pending login is stored under "oidc.<state>" for five minutes with its
//     nonce and PKCE code verifier
//   - the user is stored as JSON under session.UserKey
//   - timers renew the tokens shortly before they expire and report the expiry
//
// # Authorization
//
// The fiber middleware reads the *session.Session stored under CurrentUserLocal:
//
//	app.Get("/api/admin/ping",
//	    auth.RequireAnyRole("admin"),
//	    handler,
//	)
//
// Requests without a session get a 401. Authenticated users missing the role
// are redirected to the unauthorized page. RequireMinimumRole checks the
// highest role level against a RoleHierarchy.
package auth
