package portal

import (
	"testing"

	"github.com/goliatone/go-portal/middleware/csrf"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateHelpers(t *testing.T) {
	helpers := TemplateHelpers()

	for _, name := range []string{"is_authenticated", "has_role", "is_admin", "is_student", "role_label", "display_name", "account_active", "csrf_field", "csrf_token"} {
		assert.Contains(t, helpers, name)
	}

	roles := helpers["roles"].(map[string]string)
	assert.Equal(t, "ADMIN", roles["admin"])
}

func TestTemplateHelperFunctions(t *testing.T) {
	admin := sessionFor("ADMIN", true).User
	student := sessionFor("USER", true).User

	assert.True(t, isAuthenticated(admin))
	assert.True(t, isAuthenticated(*admin))
	assert.False(t, isAuthenticated(nil))
	assert.False(t, isAuthenticated((*User)(nil)))
	assert.False(t, isAuthenticated(map[string]any{"id": 1}))

	assert.True(t, hasRole(admin, "admin"))
	assert.True(t, hasRole(student, "STUDENT"))
	assert.False(t, hasRole(student, "ADMIN"))
	assert.False(t, hasRole(student, "bogus"))

	assert.True(t, isAdmin(admin))
	assert.True(t, isStudent(student))
	assert.Equal(t, "Admin", roleLabel(admin))
	assert.Equal(t, "Guest", roleLabel(nil))
	assert.Equal(t, "ana", displayName(admin))

	assert.True(t, accountActive(*admin))
	assert.False(t, accountActive(sessionFor("STUDENT", false).User))
	assert.False(t, accountActive(nil))
}

func TestMergeTemplateDataInjectsRequestHelpers(t *testing.T) {
	ctx := router.NewMockContext()
	token := "csrf-token-123"

	ctx.LocalsMock[csrf.DefaultContextKey] = token
	ctx.LocalsMock[csrf.DefaultContextKey+"_field"] = "_token"
	ctx.LocalsMock[SnapshotKey] = Snapshot{Session: sessionFor("ADMIN", true)}

	viewCtx := MergeTemplateData(ctx, router.ViewContext{
		"title":      "login",
		"csrf_token": "handler wins",
	})

	assert.Equal(t, "login", viewCtx["title"])
	assert.Equal(t, "handler wins", viewCtx["csrf_token"])

	field, ok := viewCtx["csrf_field"].(string)
	require.True(t, ok)
	assert.Contains(t, field, `value="`+token+`"`)
	assert.Contains(t, field, `name="_token"`)

	user, ok := viewCtx[TemplateUserKey].(*User)
	require.True(t, ok)
	assert.Equal(t, "ana", user.Username)
}
