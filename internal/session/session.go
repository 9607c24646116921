package session

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// User is the record the identity provider client persists after a login.
type User struct {
	Profile      map[string]any `json:"profile"`
	AccessToken  string         `json:"access_token"`
	IDToken      string         `json:"id_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	ExpiresAt    int64          `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is past its expiry.
// A user without an expiry never expires.
func (u *User) Expired(now time.Time) bool {
	return u.ExpiresAt > 0 && now.Unix() >= u.ExpiresAt
}

// Session is the normalized view of the logged-in user.
type Session struct {
	Subject   string         `json:"sub"`
	Email     string         `json:"email,omitempty"`
	Name      string         `json:"name,omitempty"`
	Roles     []string       `json:"roles"`
	ExpiresAt int64          `json:"expiresAt"`
	Profile   map[string]any `json:"profile"`

	// Stale is set when a silent renew failed and the session runs until it expires.
	Stale bool `json:"stale,omitempty"`

	AccessToken  string `json:"-"`
	IDToken      string `json:"-"`
	RefreshToken string `json:"-"`
}

// NewSession normalizes a provider user: role claims of the access token are
// merged in, roles extracted and email and name enriched.
func NewSession(u *User, clientID string) *Session {
	profile := make(map[string]any, len(u.Profile))
	maps.Copy(profile, u.Profile)
	mergeAccessTokenClaims(profile, u.AccessToken)

	email, name := userInfo(profile)

	return &Session{
		Subject:      claimString(profile, "sub"),
		Email:        email,
		Name:         name,
		Roles:        ExtractRoles(profile, clientID),
		ExpiresAt:    u.ExpiresAt,
		Profile:      profile,
		AccessToken:  u.AccessToken,
		IDToken:      u.IDToken,
		RefreshToken: u.RefreshToken,
	}
}

// userInfo falls back to preferred_username for the email and to
// preferred_username, then email for the name.
func userInfo(profile map[string]any) (email, name string) {
	username := claimString(profile, "preferred_username")

	email = firstNonEmpty(claimString(profile, "email"), username)
	name = firstNonEmpty(claimString(profile, "name"), username, claimString(profile, "email"))

	return email, name
}

// IsExpired reports whether now is at or past the expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// DisplayName returns the name, the email or "User".
func (s *Session) DisplayName() string {
	if s == nil {
		return "User"
	}

	return firstNonEmpty(s.Name, claimString(s.Profile, "name"), s.Email, claimString(s.Profile, "email"), "User")
}

// Initials returns one or two upper case letters for an avatar.
func (s *Session) Initials() string {
	name := s.DisplayName()

	if strings.Contains(name, "@") {
		return strings.ToUpper(name[:1])
	}

	parts := strings.Fields(name)
	if len(parts) > 1 {
		return strings.ToUpper(firstRune(parts[0]) + firstRune(parts[len(parts)-1]))
	}

	if len(parts) == 1 {
		return strings.ToUpper(firstRune(parts[0]))
	}

	return "U"
}

// HasRole reports whether the session carries role.
func (s *Session) HasRole(role string) bool {
	return s != nil && slices.Contains(s.Roles, role)
}

// HasAnyRole reports whether the session carries one of roles. No roles always match.
func (s *Session) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}

	return slices.ContainsFunc(roles, s.HasRole)
}

// HasAllRoles reports whether the session carries every role. No roles always match.
func (s *Session) HasAllRoles(roles ...string) bool {
	for _, role := range roles {
		if !s.HasRole(role) {
			return false
		}
	}

	return true
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}

	return ""
}
