package models

import "strings"

// Role is a closed set of authorities a user can hold. The internal model is
// strongly typed; the wire form ("ROLE_USER") exists only at the JSON and JWT
// boundaries.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const rolePrefix = "ROLE_"

// Wire returns the external representation of the role.
func (r Role) Wire() string {
	s := string(r)
	if strings.HasPrefix(s, rolePrefix) {
		return s
	}
	return rolePrefix + strings.ToUpper(s)
}

// ParseRole maps an external role string back to the internal form.
// Unknown roles degrade to RoleUser.
func ParseRole(s string) Role {
	s = strings.TrimPrefix(strings.TrimSpace(s), rolePrefix)
	switch strings.ToUpper(s) {
	case "ADMIN":
		return RoleAdmin
	default:
		return RoleUser
	}
}

// WireRoles converts a role set to its external representation.
func WireRoles(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Wire())
	}
	return out
}
