package portal

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }

func (l *captureLogger) find(message string) (logCall, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c.message == message {
			return c, true
		}
	}
	return logCall{}, false
}

func TestFormatArgs(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{name: "no args", want: "hello"},
		{name: "pairs", args: []any{"client", "c1", "n", 2}, want: "hello client=c1 n=2"},
		{name: "dangling value", args: []any{"client", "c1", "oops"}, want: "hello client=c1 oops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatArgs("hello", tt.args...))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig{}
	assert.Equal(t, "/login", cfg.GetLoginRoute())
	assert.Equal(t, "/logout", cfg.GetLogoutRoute())
	assert.Equal(t, "/unauthorized", cfg.GetUnauthorizedRoute())
	assert.Equal(t, "/dashboard", cfg.GetRejectedRouteDefault())
	assert.Equal(t, "portal_client", cfg.GetClientCookieName())
	assert.True(t, cfg.GetSecureCookies())
	assert.True(t, cfg.GetInactiveGuard())
	assert.False(t, cfg.GetSyncVerify())
	assert.Equal(t, 10*time.Second, cfg.GetVerifyTimeout())
}

func TestManagerLogsThrottledLoginStructured(t *testing.T) {
	fb, api := newFakeBackend(t)
	fb.handle(http.MethodPost, "/auth/login", respond(http.StatusUnauthorized, `{"success":false,"message":"Invalid credentials"}`))

	logger := &captureLogger{}
	m := newTestManager(t, api, NewMemoryStorage(),
		WithManagerLogger(logger),
		WithLoginRateLimit(rate.Every(time.Hour), 1),
	)

	m.Login(context.Background(), "c1", Credentials{UsernameOrEmail: "ana", Password: "bad"})
	m.Login(context.Background(), "c1", Credentials{UsernameOrEmail: "ana", Password: "bad"})

	call, ok := logger.find("login throttled")
	require.True(t, ok)
	assert.Equal(t, "warn", call.level)
	assert.Equal(t, []any{"client", "c1"}, call.args)
}

func TestRouteGuardErrorHandlerLogsStructuredError(t *testing.T) {
	rg, _, _ := newTestGuard(t)
	logger := &captureLogger{}
	rg.Logger = logger

	ctx := newPageCtx("GET", "/users")
	ctx.On("Redirect", "/unauthorized", []int{http.StatusFound}).Return(nil).Once()

	err := errors.New("admins only", errors.CategoryAuthz).WithCode(errors.CodeForbidden)
	require.NoError(t, rg.ErrorHandler(ctx, err))

	call, ok := logger.find("Route guard error handler")
	require.True(t, ok)
	assert.Equal(t, "error", call.level)
	require.GreaterOrEqual(t, len(call.args), 4)
	assert.Equal(t, []any{"error", "admins only"}, call.args[:2])
	ctx.AssertExpectations(t)
}
