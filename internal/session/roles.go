package session

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	claimUserRoles      = "userRoles"
	claimResourceAccess = "resource_access"
	claimRoles          = "roles"
	claimRealmAccess    = "realm_access"
)

// roleExtractor returns the roles of one claim shape, or nothing.
type roleExtractor func(claims map[string]any, clientID string) []string

// roleExtractors in trust order: the custom claim first, realm wide roles last.
var roleExtractors = []roleExtractor{
	userRolesClaim,
	clientRolesClaim,
	directRolesClaim,
	realmRolesClaim,
}

// ExtractRoles returns the roles of the first claim shape that yields any.
// Sources are never merged. The result is never nil.
func ExtractRoles(claims map[string]any, clientID string) []string {
	for _, extract := range roleExtractors {
		if roles := extract(claims, clientID); len(roles) > 0 {
			return roles
		}
	}

	return []string{}
}

func userRolesClaim(claims map[string]any, _ string) []string {
	return stringSlice(claims[claimUserRoles])
}

func clientRolesClaim(claims map[string]any, clientID string) []string {
	access, ok := claims[claimResourceAccess].(map[string]any)
	if !ok {
		return nil
	}

	client, ok := access[clientID].(map[string]any)
	if !ok {
		return nil
	}

	return stringSlice(client[claimRoles])
}

func directRolesClaim(claims map[string]any, _ string) []string {
	return stringSlice(claims[claimRoles])
}

func realmRolesClaim(claims map[string]any, _ string) []string {
	realm, ok := claims[claimRealmAccess].(map[string]any)
	if !ok {
		return nil
	}

	return stringSlice(realm[claimRoles])
}

// stringSlice copies the string elements of a claim array and skips everything else.
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))

		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

// roleClaims are copied from the access token when the profile lacks them.
var roleClaims = []string{claimUserRoles, claimResourceAccess, claimRoles, claimRealmAccess}

// mergeAccessTokenClaims copies the role claims of a JWT access token into profile.
// Keycloak puts realm_access and resource_access into the access token only.
// The token was issued to us by the provider, so the signature is not checked again.
func mergeAccessTokenClaims(profile map[string]any, accessToken string) {
	if accessToken == "" {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return
	}

	for _, key := range roleClaims {
		if _, exists := profile[key]; exists {
			continue
		}

		if v, ok := claims[key]; ok {
			profile[key] = v
		}
	}
}
