package auth

import "github.com/adminshell/adminshell/internal/session"

// RoleHierarchy maps a role to its level. Higher levels include the lower ones.
type RoleHierarchy map[string]int

// DefaultRoleHierarchy is used when the configuration defines none.
var DefaultRoleHierarchy = RoleHierarchy{
	"viewer":  10,
	"user":    20,
	"manager": 30,
	"admin":   40,
}

// RoleLevel returns the level of role, or 0 for roles outside the hierarchy.
func (h RoleHierarchy) RoleLevel(role string) int {
	return h[role]
}

// HighestRoleLevel returns the highest level among roles.
func (h RoleHierarchy) HighestRoleLevel(roles []string) int {
	highest := 0

	for _, role := range roles {
		highest = max(highest, h.RoleLevel(role))
	}

	return highest
}

// HasMinimumRoleLevel reports whether s holds a role at or above minimum.
// An unknown minimum role is never satisfied.
func (h RoleHierarchy) HasMinimumRoleLevel(s *session.Session, minimum string) bool {
	required, ok := h[minimum]
	if !ok || s == nil {
		return false
	}

	return h.HighestRoleLevel(s.Roles) >= required
}

// HasMinimumRoleLevel checks s against the DefaultRoleHierarchy.
func HasMinimumRoleLevel(s *session.Session, minimum string) bool {
	return DefaultRoleHierarchy.HasMinimumRoleLevel(s, minimum)
}
