// Package session implements the authentication session manager.
//
// A Manager owns exactly one session cell for one browser. It mediates between
// the application and the identity provider client:
//   - Initialize stores the configuration once and wires the token expiry handlers
//   - CurrentUser, AccessToken and IsAuthenticated read the stored user
//   - Login, HandleCallback and Logout drive the authorization code flow
//
// In dev mode the manager never talks to the provider and serves a fixed mock
// session instead.
//
// Navigation (redirects, reloads) is delegated to a Navigator so that the
// manager itself never touches HTTP.
package session
