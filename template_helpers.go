package portal

import (
	"maps"

	"github.com/goliatone/go-portal/middleware/csrf"
	"github.com/goliatone/go-router"
)

// TemplateUserKey is the locals and template key holding the session user
var TemplateUserKey = "current_user"

// TemplateHelpers returns the helper functions and constants for the view
// engine global data.
//
// In templates, you can then use:
//
//	{% if is_authenticated(current_user) %}
//	{% if has_role(current_user, "ADMIN") %}
//	{{ role_label(current_user) }}
//	{{ csrf_field }}
func TemplateHelpers() map[string]any {
	helpers := map[string]any{
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"is_admin":         isAdmin,
		"is_student":       isStudent,
		"role_label":       roleLabel,
		"display_name":     displayName,
		"account_active":   accountActive,

		"roles": map[string]string{
			"admin":   string(RoleAdmin),
			"student": string(RoleStudent),
		},
	}

	maps.Copy(helpers, csrf.CSRFTemplateHelpers())

	return helpers
}

// TemplateHelpersWithRouter returns template helpers with the request user
// and the request CSRF token
func TemplateHelpersWithRouter(ctx router.Context) map[string]any {
	helpers := TemplateHelpers()

	if user := CurrentUser(ctx); user != nil {
		helpers[TemplateUserKey] = user
	}

	maps.Copy(helpers, csrf.CSRFTemplateHelpersWithRouter(ctx, csrf.DefaultContextKey))

	return helpers
}

// MergeTemplateData adds the request helpers to a view context without
// overriding keys the handler already set
func MergeTemplateData(ctx router.Context, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	for k, v := range TemplateHelpersWithRouter(ctx) {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func asUser(user any) *User {
	switch u := user.(type) {
	case *User:
		return u
	case User:
		return &u
	default:
		return nil
	}
}

func isAuthenticated(user any) bool {
	u := asUser(user)
	return u != nil && u.ID != ""
}

func hasRole(user any, role string) bool {
	u := asUser(user)
	if u == nil {
		return false
	}
	target := ParseRole(role)
	return target.IsValid() && u.RoleValue() == target
}

func isAdmin(user any) bool {
	u := asUser(user)
	return u != nil && u.IsAdmin()
}

func isStudent(user any) bool {
	u := asUser(user)
	return u != nil && u.IsStudent()
}

func roleLabel(user any) string {
	u := asUser(user)
	if u == nil {
		return RoleUnknown.Label()
	}
	return u.RoleValue().Label()
}

func displayName(user any) string {
	u := asUser(user)
	if u == nil {
		return ""
	}
	return u.DisplayName()
}

func accountActive(user any) bool {
	u := asUser(user)
	return u != nil && u.AccountActive()
}
