// Package session keeps one session manager per browser. Browsers are told
// apart by the session cookie, their state lives in a namespace of the shared
// storage so it survives restarts and is seen by every replica.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// DefaultCookieName is used when the configuration names no cookie.
	DefaultCookieName = "session"

	// SessionLocal is the fiber.Locals key holding the browser session id.
	SessionLocal = "SessionID"

	sessionIDBytes = 32
)

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// validSessionID rejects malformed cookies. Whether the id was issued is
// checked against the storage by the registry.
func validSessionID(id string) bool {
	if len(id) != hex.EncodedLen(sessionIDBytes) {
		return false
	}

	_, err := hex.DecodeString(id)

	return err == nil
}

// issuedKey is the storage key marking id as issued by this service. It sits
// beside the browser namespace so a logout Reset keeps it.
func issuedKey(id string) string {
	return keyPrefix + id
}

// sessionCookie builds the browser session cookie.
func sessionCookie(name, value string, ttl time.Duration, secure bool) *fiber.Cookie {
	cookie := &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}

	if ttl > 0 {
		cookie.Expires = time.Now().Add(ttl)
	}

	return cookie
}
