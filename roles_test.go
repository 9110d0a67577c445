package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"ADMIN":        RoleAdmin,
		"admin":        RoleAdmin,
		" ROLE_ADMIN ": RoleAdmin,
		"TEACHER":      RoleAdmin,
		"STUDENT":      RoleStudent,
		"role_student": RoleStudent,
		"USER":         RoleStudent,
		"GUEST":        RoleUnknown,
		"":             RoleUnknown,
	}

	for raw, want := range cases {
		assert.Equal(t, want, ParseRole(raw), raw)
	}
}

func TestRoleIn(t *testing.T) {
	assert.True(t, RoleAdmin.In())
	assert.True(t, RoleAdmin.In(RoleAdmin))
	assert.True(t, RoleStudent.In(RoleAdmin, RoleStudent))
	assert.False(t, RoleStudent.In(RoleAdmin))
	assert.False(t, RoleUnknown.In())
	assert.False(t, Role("OWNER").In())
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Admin", RoleAdmin.Label())
	assert.Equal(t, "Student", RoleStudent.Label())
	assert.Equal(t, "Guest", RoleUnknown.Label())
}

func TestParseRoles(t *testing.T) {
	assert.Equal(t, []Role{RoleAdmin, RoleStudent}, ParseRoles("admin", "nobody", "user"))
	assert.Empty(t, ParseRoles())
}
