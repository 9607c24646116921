package session

import (
	"errors"
	"strings"
)

var (
	// ErrConfiguration is returned by Initialize when a required setting is missing.
	ErrConfiguration = errors.New("invalid session configuration")

	// ErrNotInitialized is returned when the manager is used before Initialize.
	ErrNotInitialized = errors.New("session manager not initialized, call Initialize first")

	// ErrInvalidCallback is returned when the token exchange yields no access token.
	ErrInvalidCallback = errors.New("invalid user data received")

	// ErrSessionCleared is returned by Renew and HandleCallback when a logout or
	// expiry cleared the session while they ran.
	ErrSessionCleared = errors.New("session cleared while the operation ran")

	// ErrProviderUnavailable wraps sign-out and silent renew failures of the identity provider.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// sessionErrorMarkers are fragments of provider errors that mean the login
// attempt went stale and a fresh login fixes it.
var sessionErrorMarkers = []string{
	"expired",
	"invalid_grant",
	"unauthorized",
	"no matching state",
	"login_required",
}

// IsSessionError reports whether err looks like a stale or expired login attempt.
// Such callback failures trigger a new login instead of the error page.
func IsSessionError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range sessionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
