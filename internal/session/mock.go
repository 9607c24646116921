package session

const (
	// MockAccessToken is the access token of the dev mode session.
	MockAccessToken = "mock_token"

	// MockExpiresAt is 2100-01-01T00:00:00Z.
	MockExpiresAt int64 = 4102444800

	// DefaultRole is used by the mock session when no dev roles are configured.
	DefaultRole = "user"

	mockSubject = "mock-user-id-12345"
	mockName    = "Mock User (Dev Mode)"
	mockEmail   = "mock.user@dev.local"
)

// NewMockSession returns the deterministic dev mode session.
func NewMockSession(roles []string) *Session {
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	} else {
		roles = append([]string(nil), roles...)
	}

	profile := map[string]any{
		"sub":                mockSubject,
		"name":               mockName,
		"email":              mockEmail,
		"email_verified":     true,
		"preferred_username": "mockuser",
		"given_name":         "Mock",
		"family_name":        "User",
		"exp":                MockExpiresAt,
		claimUserRoles:       append([]string(nil), roles...),
	}

	return &Session{
		Subject:      mockSubject,
		Email:        mockEmail,
		Name:         mockName,
		Roles:        roles,
		ExpiresAt:    MockExpiresAt,
		Profile:      profile,
		AccessToken:  MockAccessToken,
		IDToken:      "mock_id_token",
		RefreshToken: "mock_refresh_token",
	}
}
