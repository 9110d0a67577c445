package portal

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Locals keys populated by ClientIdentity
const (
	ClientIDKey = "portal_client_id"
	SnapshotKey = "portal_snapshot"
)

// RouteGuard applies Guard decisions to go-router requests
type RouteGuard struct {
	manager        *Manager
	guard          *Guard
	cfg            Config
	Logger         Logger
	BlockedHandler func(ctx router.Context, out Outcome) error
	ErrorHandler   func(ctx router.Context, err error) error
}

// NewRouteGuard wires the guard to a session manager
func NewRouteGuard(manager *Manager, cfg Config) *RouteGuard {
	if manager == nil {
		panic("Missing Manager in route guard...")
	}

	if cfg == nil {
		cfg = DefaultConfig{}
	}

	a := &RouteGuard{
		manager: manager,
		guard:   NewGuard(cfg),
		cfg:     cfg,
		Logger:  defLogger{},
	}

	a.BlockedHandler = a.defaultBlockedHandler
	a.ErrorHandler = a.defaultErrHandler

	return a
}

// Guard returns the decision function used by the middleware
func (a *RouteGuard) Guard() *Guard {
	return a.guard
}

// Manager returns the session manager
func (a *RouteGuard) Manager() *Manager {
	return a.manager
}

// ClientIdentity makes sure the request carries a client id, loads the
// client snapshot and publishes both in locals. It has to run before any
// other middleware of this package.
func (a *RouteGuard) ClientIdentity() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			clientID := a.clientID(ctx)
			snap := a.manager.Snapshot(ctx.Context(), clientID)

			ctx.Locals(ClientIDKey, clientID)
			ctx.Locals(SnapshotKey, snap)
			if user := snap.User(); user != nil {
				ctx.Locals(TemplateUserKey, user)
			}

			return ctx.Next()
		}
	}
}

// ProtectedRoute enforces rule on every request it wraps
func (a *RouteGuard) ProtectedRoute(rule RouteRule) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			snap := a.snapshot(ctx)
			out := a.guard.Evaluate(snap, rule, ctx.Path())
			return a.apply(ctx, out)
		}
	}
}

// RequireRoles is ProtectedRoute for a role set
func (a *RouteGuard) RequireRoles(roles ...Role) router.MiddlewareFunc {
	return a.ProtectedRoute(RouteRule{Roles: roles})
}

// InactiveGuard applies only the checks that hold for every route: the
// deactivated notice redirect and the inactive account block. Mount it
// once on the whole app.
func (a *RouteGuard) InactiveGuard() router.MiddlewareFunc {
	return a.ProtectedRoute(RouteRule{Public: true})
}

func (a *RouteGuard) apply(ctx router.Context, out Outcome) error {
	switch out.Decision {
	case Allow:
		return ctx.Next()
	case RedirectLogin:
		if out.Remember != "" {
			a.SetRedirect(ctx)
		}
		a.Logger.Info("guard redirect to login", "path", ctx.Path(), "location", out.Location)
		return a.redirect(ctx, out.Location)
	case RedirectUnauthorized:
		a.Logger.Info("guard redirect to unauthorized", "path", ctx.Path())
		return a.redirect(ctx, out.Location)
	case Blocked:
		return a.BlockedHandler(ctx, out)
	default:
		return a.ErrorHandler(ctx, errors.New("unknown guard decision", errors.CategoryInternal))
	}
}

func (a *RouteGuard) redirect(ctx router.Context, location string) error {
	status := http.StatusSeeOther
	if ctx.Method() == string(router.GET) {
		status = http.StatusFound
	}
	return ctx.Redirect(location, status)
}

// SetRedirect remembers the current URL so login can return to it
func (a *RouteGuard) SetRedirect(ctx router.Context) {
	a.RememberRoute(ctx, ctx.OriginalURL())
}

// RememberRoute makes login return to path
func (a *RouteGuard) RememberRoute(ctx router.Context, path string) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Debug("Setting redirect cookie", "key", rejectedRoute, "path", path)

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    path,
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

// GetRedirect returns and forgets the remembered URL. Only local paths
// are honored.
func (a *RouteGuard) GetRedirect(ctx router.Context, def ...string) string {
	fallback := a.cfg.GetRejectedRouteDefault()
	if len(def) > 0 && def[0] != "" {
		fallback = def[0]
	}

	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return fallback
	}

	a.cookieDel(ctx, rejectedRoute)

	if !isLocalPath(r) {
		return fallback
	}
	return r
}

func (a *RouteGuard) clientID(ctx router.Context) string {
	name := a.cfg.GetClientCookieName()
	if raw := ctx.Cookies(name); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id.String()
		}
		a.Logger.Warn("replacing invalid client cookie", "value", raw)
	}

	id := uuid.NewString()
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    id,
		Expires:  time.Now().Add(time.Duration(a.cfg.GetClientCookieExpiration()) * time.Hour),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
	return id
}

func (a *RouteGuard) snapshot(ctx router.Context) Snapshot {
	if snap, ok := SnapshotFromRouter(ctx); ok {
		return snap
	}

	clientID := a.clientID(ctx)
	snap := a.manager.Snapshot(ctx.Context(), clientID)
	ctx.Locals(ClientIDKey, clientID)
	ctx.Locals(SnapshotKey, snap)
	return snap
}

func (a *RouteGuard) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: "Lax",
	})
}

func (a *RouteGuard) defaultBlockedHandler(c router.Context, out Outcome) error {
	a.Logger.Info("inactive account blocked", "path", c.Path())
	return c.Status(http.StatusForbidden).Render("errors/inactive", MergeTemplateData(c, router.ViewContext{
		"message": out.Message,
	}))
}

func (a *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Error(
		"Route guard error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth:
		a.SetRedirect(c)
		return a.redirect(c, a.cfg.GetLoginRoute())
	case errors.CategoryAuthz:
		return a.redirect(c, a.cfg.GetUnauthorizedRoute())
	default:
		code := richErr.Code
		if code < 400 {
			code = http.StatusInternalServerError
		}
		return c.Status(code).Render("errors/500", router.ViewContext{
			"error":   richErr,
			"message": richErr.Message,
		})
	}
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
