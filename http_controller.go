package portal

import (
	"context"
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-portal/backend"
	"github.com/goliatone/go-portal/middleware/csrf"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterPortalRoutes mounts the portal pages. The client identity
// middleware of the guard must already be installed on app.
func RegisterPortalRoutes[T any](app router.Router[T], opts ...PortalControllerOption) *PortalController {
	controller := NewPortalController(opts...)
	g := controller.Guard

	public := g.ProtectedRoute(RouteRule{Public: true})
	signedIn := g.ProtectedRoute(RouteRule{})
	admins := g.RequireRoles(RoleAdmin)
	students := g.RequireRoles(RoleStudent)

	app.Get(controller.Routes.Home, controller.Home, public).
		SetName("home.get")

	app.Get(controller.Routes.Login, controller.LoginShow, public).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost, public).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut, public).
		SetName("sign-out.get")
	app.Post(controller.Routes.Logout, controller.LogOut, public).
		SetName("sign-out.post")

	app.Get(controller.Routes.Register, controller.RegistrationShow, public).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate, public).
		SetName("register.post")

	app.Get(controller.Routes.Unauthorized, controller.Unauthorized, public).
		SetName("unauthorized.get")

	app.Get(controller.Routes.Dashboard, controller.Dashboard, signedIn).
		SetName("dashboard.get")

	app.Get(controller.Routes.Courses, controller.CourseList, signedIn).
		SetName("courses.get")
	app.Get(controller.Routes.Courses+"/:id", controller.CourseShow, signedIn).
		SetName("course.get")
	app.Post(controller.Routes.Courses+"/:id/enroll", controller.CourseEnroll, students).
		SetName("course-enroll.post")

	app.Get(controller.Routes.Profile, controller.ProfileShow, students).
		SetName("profile.get")

	app.Get(controller.Routes.Users, controller.UserList, admins).
		SetName("users.get")
	app.Post(controller.Routes.Users+"/:id/activate", controller.UserActivate, admins).
		SetName("user-activate.post")
	app.Post(controller.Routes.Users+"/:id/deactivate", controller.UserDeactivate, admins).
		SetName("user-deactivate.post")

	app.Get("/*", controller.NotFound).
		SetName("not-found.get")

	return controller
}

type PortalControllerRoutes struct {
	Home         string
	Login        string
	Logout       string
	Register     string
	Dashboard    string
	Courses      string
	Users        string
	Profile      string
	Unauthorized string
}

type PortalControllerViews struct {
	Home             string
	Login            string
	Register         string
	AdminDashboard   string
	StudentDashboard string
	Courses          string
	Course           string
	Users            string
	Profile          string
	Unauthorized     string
}

type PortalController struct {
	Debug        bool
	Logger       Logger
	Manager      *Manager
	Guard        *RouteGuard
	Routes       *PortalControllerRoutes
	Views        *PortalControllerViews
	ErrorHandler router.ErrorHandler
}

type PortalControllerOption func(*PortalController) *PortalController

// WithControllerManager sets the session manager
func WithControllerManager(m *Manager) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Manager = m
		return c
	}
}

// WithControllerGuard sets the route guard
func WithControllerGuard(g *RouteGuard) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Guard = g
		return c
	}
}

// WithControllerLogger sets the logger
func WithControllerLogger(l Logger) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

// WithControllerDebug dumps backend payloads when rendering
func WithControllerDebug(debug bool) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Debug = debug
		return c
	}
}

func NewPortalController(opts ...PortalControllerOption) *PortalController {
	c := &PortalController{
		Logger: defLogger{},
		Routes: &PortalControllerRoutes{
			Home:         "/",
			Login:        "/login",
			Logout:       "/logout",
			Register:     "/register",
			Dashboard:    "/dashboard",
			Courses:      "/courses",
			Users:        "/users",
			Profile:      "/student/profile",
			Unauthorized: "/unauthorized",
		},
		Views: &PortalControllerViews{
			Home:             "home",
			Login:            "login",
			Register:         "register",
			AdminDashboard:   "admin_dashboard",
			StudentDashboard: "student_dashboard",
			Courses:          "courses",
			Course:           "course",
			Users:            "users",
			Profile:          "profile",
			Unauthorized:     "unauthorized",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing Manager in portal controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in portal controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.Guard.ErrorHandler
	}

	return c
}

func (a *PortalController) render(ctx router.Context, view string, data router.ViewContext) error {
	return ctx.Render(view, MergeTemplateData(ctx, data))
}

func (a *PortalController) clientID(ctx router.Context) (string, error) {
	id, ok := ClientIDFromRouter(ctx)
	if !ok {
		return "", ErrInvalidClient
	}
	return id, nil
}

func (a *PortalController) Home(ctx router.Context) error {
	return a.render(ctx, a.Views.Home, router.ViewContext{
		"title": "Home",
	})
}

// NotFound sends unknown pages to the landing page
func (a *PortalController) NotFound(ctx router.Context) error {
	return ctx.Redirect(a.Routes.Home, http.StatusFound)
}

func (a *PortalController) LoginShow(ctx router.Context) error {
	if snap, ok := SnapshotFromRouter(ctx); ok && snap.Authenticated() {
		return ctx.Redirect(a.Routes.Dashboard, router.StatusSeeOther)
	}

	data := router.ViewContext{
		"errors": nil,
		"record": nil,
	}

	if ctx.Query("deactivated", "") == "true" {
		data["error_message"] = MessageDeactivated
	}

	return a.render(ctx, a.Views.Login, data)
}

func (a *PortalController) LoginPost(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(Credentials)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Failed to parse form").
			WithCode(errors.CodeBadRequest))
	}

	if a.Debug {
		a.Logger.Debug("login payload", "identifier", payload.UsernameOrEmail)
	}

	res := a.Manager.Login(ctx.Context(), clientID, *payload)
	if !res.Success {
		status := http.StatusUnauthorized
		switch res.Kind {
		case KindValidation:
			status = http.StatusBadRequest
		case KindTransport:
			status = http.StatusBadGateway
		case KindDeactivated:
			status = http.StatusForbidden
		}
		if errors.Is(res.Err, ErrLoginThrottled) {
			status = http.StatusTooManyRequests
		}

		return ctx.Status(status).Render(a.Views.Login, MergeTemplateData(ctx, router.ViewContext{
			"record":        router.ViewContext{"usernameOrEmail": payload.UsernameOrEmail},
			"validation":    res.Fields,
			"errors":        map[string]string{"authentication": res.Message},
			"error_message": res.Message,
		}))
	}

	if err := csrf.Rotate(ctx.Context(), a.Manager.Storage(), clientID); err != nil {
		a.Logger.Warn("rotate csrf token", "client", clientID, "error", err)
	}

	redirect := a.Guard.GetRedirect(ctx, a.Routes.Dashboard)

	a.Logger.Info("redirecting after login", "client", clientID, "to", redirect)

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *PortalController) LogOut(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if res := a.Manager.Logout(ctx.Context(), clientID); !res.Success {
		a.Logger.Error("logout clear record", "client", clientID, "error", res.Err)
	}

	if err := csrf.Rotate(ctx.Context(), a.Manager.Storage(), clientID); err != nil {
		a.Logger.Warn("rotate csrf token", "client", clientID, "error", err)
	}

	return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
}

func (a *PortalController) RegistrationShow(ctx router.Context) error {
	return a.render(ctx, a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": Registration{},
	})
}

func (a *PortalController) RegistrationCreate(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(Registration)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"errors":        map[string]string{"form": "Failed to parse form"},
			"error_message": "Failed to parse form",
			"record":        payload.public(),
		}))
	}

	res := a.Manager.Register(ctx.Context(), clientID, *payload)
	if !res.Success {
		a.Logger.Warn("register user failed", "kind", res.Kind, "error", res.Err)

		status := http.StatusOK
		switch res.Kind {
		case KindValidation:
			status = http.StatusBadRequest
		case KindConflict:
			status = http.StatusConflict
		case KindTransport:
			status = http.StatusBadGateway
		}

		return ctx.Status(status).Render(a.Views.Register, MergeTemplateData(ctx, router.ViewContext{
			"record":        payload.public(),
			"validation":    res.Fields,
			"errors":        map[string]string{"form": res.Message},
			"error_message": res.Message,
		}))
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": res.Message,
	}).Redirect(a.Routes.Login, router.StatusSeeOther)
}

func (a *PortalController) Unauthorized(ctx router.Context) error {
	return ctx.Status(http.StatusForbidden).Render(a.Views.Unauthorized, MergeTemplateData(ctx, router.ViewContext{
		"title": "Unauthorized",
	}))
}

func (a *PortalController) Dashboard(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user := CurrentUser(ctx)
	api := a.Manager.API(clientID)

	courses, err := fetchList[Course](ctx, api.Courses)
	if err != nil {
		return a.backendFailure(ctx, err)
	}

	data := router.ViewContext{
		"title":   "Dashboard",
		"user":    user,
		"courses": courses,
		"stats": map[string]int{
			"courses":        len(courses),
			"active_courses": countAvailable(courses),
		},
	}

	if user != nil && user.IsAdmin() {
		users, err := fetchList[User](ctx, api.Users)
		if err != nil {
			return a.backendFailure(ctx, err)
		}
		data["users"] = users
		data["stats"] = map[string]int{
			"courses":        len(courses),
			"active_courses": countAvailable(courses),
			"users":          len(users),
			"active_users":   countActive(users),
		}
		return a.render(ctx, a.Views.AdminDashboard, data)
	}

	enrollments, err := a.enrollments(ctx, clientID)
	if err != nil {
		return a.backendFailure(ctx, err)
	}
	fillEnrollments(enrollments, courses)

	data["enrollments"] = enrollments
	data["stats"] = map[string]int{
		"courses":        len(courses),
		"active_courses": countAvailable(courses),
		"enrollments":    len(enrollments),
	}

	return a.render(ctx, a.Views.StudentDashboard, data)
}

func (a *PortalController) CourseList(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	courses, err := fetchList[Course](ctx, a.Manager.API(clientID).Courses)
	if err != nil {
		return a.backendFailure(ctx, err)
	}

	return a.render(ctx, a.Views.Courses, router.ViewContext{
		"title":   "Courses",
		"courses": courses,
	})
}

func (a *PortalController) CourseShow(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	id := ctx.Param("id")
	env, err := a.Manager.API(clientID).Course(ctx.Context(), id)
	if err != nil {
		return a.backendFailure(ctx, err)
	}

	course := Course{}
	if err := env.Decode(&course); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryNotFound, "Course not found").
			WithCode(errors.CodeNotFound))
	}

	a.dump("course", course)

	enrolled := false
	if user := CurrentUser(ctx); user != nil && user.IsStudent() {
		enrollments, err := a.enrollments(ctx, clientID)
		if err != nil {
			return a.backendFailure(ctx, err)
		}
		enrolled = Enrolled(enrollments, course.ID)
	}

	return a.render(ctx, a.Views.Course, router.ViewContext{
		"title":    course.Name,
		"course":   course,
		"enrolled": enrolled,
	})
}

func (a *PortalController) CourseEnroll(ctx router.Context) error {
	clientID, err := a.clientID(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	id := ctx.Param("id")
	back := a.Routes.Courses + "/" + id

	env, err := a.Manager.API(clientID).Enroll(ctx.Context(), id)
	if err != nil {
		if backend.IsUnauthorized(err) {
			a.Guard.RememberRoute(ctx, back)
			return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
		}
		a.Logger.Warn("enroll in course", "client", clientID, "course", id, "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  env.MessageOr("Failed to enroll in course"),
			"system_message": "Enrollment failed",
		}).Redirect(back, router.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": env.MessageOr("Successfully enrolled in course!"),
	}).Redirect(back, router.StatusSeeOther)
}

// enrollments lists the student's enrollments. Only a rejected token is
// returned as an error, pages render without the list otherwise.
func (a *PortalController) enrollments(ctx router.Context, clientID string) ([]Enrollment, error) {
	out, err := fetchList[Enrollment](ctx, a.Manager.API(clientID).MyEnrollments)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, err
		}
		a.Logger.Warn("list enrollments", "client", clientID, "error", err)
		return []Enrollment{}, nil
	}
	return out, nil
}

// backendFailure handles a failed backend call. A rejected token has
// already destroyed the session so the visitor goes back to login.
func (a *PortalController) backendFailure(ctx router.Context, err error) error {
	if backend.IsUnauthorized(err) {
		a.Guard.SetRedirect(ctx)
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}
	if backend.StatusOf(err) == http.StatusForbidden {
		return ctx.Redirect(a.Routes.Unauthorized, router.StatusSeeOther)
	}
	return a.ErrorHandler(ctx, err)
}

func (a *PortalController) dump(label string, v any) {
	if a.Debug {
		a.Logger.Debug(label, "payload", print.MaybePrettyJSON(v))
	}
}

// fetchList decodes a list endpoint, wrapped or raw
func fetchList[T any](ctx router.Context, call func(context.Context) (*backend.Envelope, error)) ([]T, error) {
	env, err := call(ctx.Context())
	if err != nil {
		return nil, err
	}

	out := []T{}
	if err := env.Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "unexpected list payload from backend").
			WithCode(http.StatusBadGateway)
	}
	return out, nil
}

func countAvailable(courses []Course) int {
	n := 0
	for _, c := range courses {
		if c.Available() {
			n++
		}
	}
	return n
}

func countActive(users []User) int {
	n := 0
	for i := range users {
		if users[i].AccountActive() {
			n++
		}
	}
	return n
}
