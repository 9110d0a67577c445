package portal

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the canonical portal role
type Role string

const (
	// RoleUnknown never satisfies a role requirement
	RoleUnknown Role = ""
	// RoleAdmin manages users and the course catalog
	RoleAdmin Role = "ADMIN"
	// RoleStudent browses courses and owns a profile
	RoleStudent Role = "STUDENT"
)

// role strings the backend may send that map to a canonical role
var roleAliases = map[string]Role{
	"ADMIN":   RoleAdmin,
	"TEACHER": RoleAdmin,
	"STUDENT": RoleStudent,
	"USER":    RoleStudent,
}

// ParseRole canonicalizes a raw role string. Unknown values
// resolve to RoleUnknown.
func ParseRole(raw string) Role {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.TrimPrefix(key, "ROLE_")
	if r, ok := roleAliases[key]; ok {
		return r
	}
	return RoleUnknown
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStudent:
		return true
	default:
		return false
	}
}

// Label is the human readable role name
func (r Role) Label() string {
	if !r.IsValid() {
		return "Guest"
	}
	return cases.Title(language.English).String(strings.ToLower(string(r)))
}

func (r Role) String() string {
	return string(r)
}

// In reports whether the role is part of the allowed set.
// An empty set allows any valid role.
func (r Role) In(allowed ...Role) bool {
	if !r.IsValid() {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// ParseRoles parses a list of raw role strings, dropping unknown entries
func ParseRoles(raw ...string) []Role {
	out := make([]Role, 0, len(raw))
	for _, s := range raw {
		if r := ParseRole(s); r.IsValid() {
			out = append(out, r)
		}
	}
	return out
}
