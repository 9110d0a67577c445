package portal

import (
	"fmt"
	"strings"
	"time"
)

// Logger is the structured logger used by the portal.
// Messages are followed by key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds portal options
type Config interface {
	GetLoginRoute() string
	GetLogoutRoute() string
	GetUnauthorizedRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
	GetClientCookieName() string
	// GetClientCookieExpiration is expressed in hours
	GetClientCookieExpiration() int
	GetSecureCookies() bool
	GetInactiveGuard() bool
	GetSyncVerify() bool
	GetVerifyTimeout() time.Duration
}

// DefaultConfig is used when no Config is provided
type DefaultConfig struct{}

func (DefaultConfig) GetLoginRoute() string           { return "/login" }
func (DefaultConfig) GetLogoutRoute() string          { return "/logout" }
func (DefaultConfig) GetUnauthorizedRoute() string    { return "/unauthorized" }
func (DefaultConfig) GetRejectedRouteKey() string     { return "rejected_route" }
func (DefaultConfig) GetRejectedRouteDefault() string { return "/dashboard" }
func (DefaultConfig) GetClientCookieName() string     { return "portal_client" }
func (DefaultConfig) GetClientCookieExpiration() int  { return 24 * 365 }
func (DefaultConfig) GetSecureCookies() bool          { return true }
func (DefaultConfig) GetInactiveGuard() bool          { return true }
func (DefaultConfig) GetSyncVerify() bool             { return false }
func (DefaultConfig) GetVerifyTimeout() time.Duration { return 10 * time.Second }

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) { d.log("DBG", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.log("INF", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.log("WRN", msg, args...) }
func (d defLogger) Error(msg string, args ...any) { d.log("ERR", msg, args...) }

func (defLogger) log(level, msg string, args ...any) {
	fmt.Printf("[%s] PORTAL %s\n", level, formatArgs(msg, args...))
}

func formatArgs(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		fmt.Fprintf(&b, " %v", args[len(args)-1])
	}
	return b.String()
}
