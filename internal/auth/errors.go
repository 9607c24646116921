package auth

import "errors"

var (
	// ErrNoIDToken is returned when the OAuth2 token response doesn't contain an ID token.
	// This typically indicates a misconfigured OIDC provider or an incomplete authentication flow.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrNonceMismatch is returned when the ID token nonce differs from the one of the login attempt.
	ErrNonceMismatch = errors.New("id_token nonce does not match")

	// ErrNoMatchingState is returned when a callback carries a state this browser never issued,
	// or one that expired.
	ErrNoMatchingState = errors.New("no matching state found in storage")

	// ErrMissingCode is returned when the callback has neither a code nor an error.
	ErrMissingCode = errors.New("no authorization code in callback")

	// ErrNoRefreshToken is returned by a silent renew when the user has no refresh token.
	ErrNoRefreshToken = errors.New("login_required: no refresh token")

	// ErrSubjectChanged is returned when a refreshed ID token belongs to another user.
	ErrSubjectChanged = errors.New("refreshed id_token has a different subject")

	// ErrRevocationFailed is returned when the revocation endpoint rejects a token.
	ErrRevocationFailed = errors.New("token revocation failed")
)
