// Package main starts AdminShell, an admin web shell whose browser sessions
// are authenticated against an OpenID Connect provider. See app for the
// commands and internal/session for the session lifecycle.
package main
