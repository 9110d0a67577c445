package portal

import (
	"net/url"
	"strings"
)

// Decision is what the guard wants done with a navigation
type Decision int

const (
	// Allow lets the navigation through
	Allow Decision = iota
	// RedirectLogin sends the visitor to the login page
	RedirectLogin
	// RedirectUnauthorized sends the visitor to the unauthorized page
	RedirectUnauthorized
	// Blocked renders the inactive account notice instead of the page
	Blocked
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// RouteRule describes the requirements of a route
type RouteRule struct {
	// Public routes do not require a session
	Public bool
	// Roles restricts the route to these roles, empty means any role
	Roles []Role
}

// Outcome is the result of evaluating a rule
type Outcome struct {
	Decision Decision
	// Location is the redirect target for redirect decisions
	Location string
	// Remember is the path to return to after login
	Remember string
	// Message is shown for Blocked outcomes
	Message string
}

// Guard decides navigations from a session snapshot. It holds no state
// and performs no I/O.
type Guard struct {
	LoginRoute        string
	UnauthorizedRoute string
	// InactiveGuard blocks every non exempt route for sessions whose user
	// is inactive. The manager already destroys such sessions once the
	// backend reports them; this covers cached records that are still
	// Unverified.
	InactiveGuard bool
	// Exempt paths skip the inactive block
	Exempt []string
}

// NewGuard builds a Guard from the portal configuration
func NewGuard(cfg Config) *Guard {
	if cfg == nil {
		cfg = DefaultConfig{}
	}
	return &Guard{
		LoginRoute:        cfg.GetLoginRoute(),
		UnauthorizedRoute: cfg.GetUnauthorizedRoute(),
		InactiveGuard:     cfg.GetInactiveGuard(),
		Exempt:            []string{cfg.GetLogoutRoute()},
	}
}

// Evaluate returns the outcome for navigating to path under rule
func (g *Guard) Evaluate(snap Snapshot, rule RouteRule, path string) Outcome {
	if snap.Notice == ReasonDeactivated && !g.isLoginPath(path) {
		return Outcome{
			Decision: RedirectLogin,
			Location: DeactivatedLoginURL(g.LoginRoute),
		}
	}

	if g.InactiveGuard && snap.Session != nil && !snap.Session.User.AccountActive() && !g.isExempt(path) {
		return Outcome{
			Decision: Blocked,
			Message:  MessageInactive,
		}
	}

	if rule.Public {
		return Outcome{Decision: Allow}
	}

	if !snap.Authenticated() {
		return Outcome{
			Decision: RedirectLogin,
			Location: g.LoginRoute,
			Remember: path,
		}
	}

	if len(rule.Roles) > 0 && !snap.Session.Role().In(rule.Roles...) {
		return Outcome{
			Decision: RedirectUnauthorized,
			Location: g.UnauthorizedRoute,
		}
	}

	return Outcome{Decision: Allow}
}

func (g *Guard) isExempt(path string) bool {
	for _, p := range g.Exempt {
		if p != "" && samePath(p, path) {
			return true
		}
	}
	return false
}

func (g *Guard) isLoginPath(path string) bool {
	return samePath(g.LoginRoute, path)
}

func samePath(a, b string) bool {
	if i := strings.IndexAny(b, "?#"); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

// DeactivatedLoginURL is the login route flagged for a deactivated account
func DeactivatedLoginURL(loginRoute string) string {
	q := url.Values{}
	q.Set("deactivated", "true")
	return loginRoute + "?" + q.Encode()
}
