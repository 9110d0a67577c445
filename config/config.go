// Package config loads the portal configuration from defaults, an optional
// YAML or JSON file, a .env.local file and PORTAL_ environment variables,
// in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/goliatone/go-portal"
)

const (
	DefaultEnvPrefix = "PORTAL_"
	DefaultEnvFile   = ".env.local"
)

// Storage drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

var _ portal.Config = Auth{}

type BaseConfig struct {
	App     App     `koanf:"app"`
	Server  Server  `koanf:"server"`
	Backend Backend `koanf:"backend"`
	Auth    Auth    `koanf:"auth"`
	Storage Storage `koanf:"storage"`
}

type App struct {
	Name  string `koanf:"name"`
	Debug bool   `koanf:"debug"`
}

type Server struct {
	Addr                      string `koanf:"addr"`
	ShutdownTimeoutExpression string `koanf:"shutdown_timeout"`
}

type Backend struct {
	BaseURL           string `koanf:"base_url"`
	TimeoutExpression string `koanf:"timeout"`
	// JWKSURL enables signature checks of backend tokens when set
	JWKSURL string `koanf:"jwks_url"`
	Debug   bool   `koanf:"debug"`
}

type Auth struct {
	LoginRoute              string  `koanf:"login_route"`
	LogoutRoute             string  `koanf:"logout_route"`
	UnauthorizedRoute       string  `koanf:"unauthorized_route"`
	RejectedRouteKey        string  `koanf:"rejected_route_key"`
	RejectedRouteDefault    string  `koanf:"rejected_route_default"`
	ClientCookieName        string  `koanf:"client_cookie_name"`
	ClientCookieExpiration  int     `koanf:"client_cookie_expiration"`
	SecureCookies           bool    `koanf:"secure_cookies"`
	InactiveGuard           bool    `koanf:"inactive_guard"`
	SyncVerify              bool    `koanf:"sync_verify"`
	VerifyTimeoutExpression string  `koanf:"verify_timeout"`
	LoginRateLimit          float64 `koanf:"login_rate_limit"`
	LoginBurst              int     `koanf:"login_burst"`
	SweepIdleExpression     string  `koanf:"sweep_idle"`
}

type Storage struct {
	Driver        string `koanf:"driver"`
	DSN           string `koanf:"dsn"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
	TTLExpression string `koanf:"ttl"`
}

func Defaults() map[string]any {
	return map[string]any{
		"app.name":  "Sciqus",
		"app.debug": false,

		"server.addr":             ":8572",
		"server.shutdown_timeout": "10s",

		"backend.base_url": "http://localhost:8080/api",
		"backend.timeout":  "15s",
		"backend.jwks_url": "",
		"backend.debug":    false,

		"auth.login_route":              "/login",
		"auth.logout_route":             "/logout",
		"auth.unauthorized_route":       "/unauthorized",
		"auth.rejected_route_key":       "rejected_route",
		"auth.rejected_route_default":   "/dashboard",
		"auth.client_cookie_name":       "portal_client",
		"auth.client_cookie_expiration": 24 * 365,
		"auth.secure_cookies":           true,
		"auth.inactive_guard":           true,
		"auth.sync_verify":              false,
		"auth.verify_timeout":           "10s",
		"auth.login_rate_limit":         1.0,
		"auth.login_burst":              5,
		"auth.sweep_idle":               "1h",

		"storage.driver":       DriverMemory,
		"storage.dsn":          "file:portal.db?cache=shared",
		"storage.redis_addr":   "localhost:6379",
		"storage.redis_db":     0,
		"storage.redis_prefix": "portal",
		"storage.ttl":          "720h",
	}
}

type loader struct {
	file      string
	envFile   string
	envPrefix string
}

type Option func(*loader)

// WithFile loads a YAML or JSON file, by extension, on top of the defaults
func WithFile(path string) Option {
	return func(l *loader) {
		l.file = path
	}
}

// WithEnvFile sets the dotenv file, an empty path skips it
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// Load builds the configuration. Nested environment keys use a double
// underscore: PORTAL_BACKEND__BASE_URL sets backend.base_url.
func Load(opts ...Option) (*BaseConfig, error) {
	l := &loader{
		envFile:   DefaultEnvFile,
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load config defaults")
	}

	if l.file != "" {
		parser, err := parserFor(l.file)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(l.file), parser); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load config file").
				WithMetadata(map[string]any{"file": l.file})
		}
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load env file").
				WithMetadata(map[string]any{"file": l.envFile})
		}
	}

	prefix := l.envPrefix
	err := k.Load(env.Provider(prefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load environment")
	}

	cfg := &BaseConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, errors.New("unsupported config file type", errors.CategoryBadInput).
			WithMetadata(map[string]any{"file": path})
	}
}

func (c BaseConfig) Validate() error {
	exprs := map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeoutExpression,
		"backend.timeout":         c.Backend.TimeoutExpression,
		"auth.verify_timeout":     c.Auth.VerifyTimeoutExpression,
		"auth.sweep_idle":         c.Auth.SweepIdleExpression,
		"storage.ttl":             c.Storage.TTLExpression,
	}
	for key, expr := range exprs {
		if _, err := time.ParseDuration(expr); err != nil {
			return errors.New(fmt.Sprintf("invalid duration for %s: %q", key, expr), errors.CategoryValidation)
		}
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return errors.New(fmt.Sprintf("unknown storage driver %q", c.Storage.Driver), errors.CategoryValidation)
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required", errors.CategoryValidation)
	}

	return nil
}

func (c BaseConfig) GetApp() App         { return c.App }
func (c BaseConfig) GetServer() Server   { return c.Server }
func (c BaseConfig) GetBackend() Backend { return c.Backend }
func (c BaseConfig) GetAuth() Auth       { return c.Auth }
func (c BaseConfig) GetStorage() Storage { return c.Storage }

func (s Server) GetShutdownTimeout() time.Duration {
	return mustDuration(s.ShutdownTimeoutExpression)
}

func (b Backend) GetTimeout() time.Duration {
	return mustDuration(b.TimeoutExpression)
}

func (a Auth) GetLoginRoute() string           { return a.LoginRoute }
func (a Auth) GetLogoutRoute() string          { return a.LogoutRoute }
func (a Auth) GetUnauthorizedRoute() string    { return a.UnauthorizedRoute }
func (a Auth) GetRejectedRouteKey() string     { return a.RejectedRouteKey }
func (a Auth) GetRejectedRouteDefault() string { return a.RejectedRouteDefault }
func (a Auth) GetClientCookieName() string     { return a.ClientCookieName }
func (a Auth) GetClientCookieExpiration() int  { return a.ClientCookieExpiration }
func (a Auth) GetSecureCookies() bool          { return a.SecureCookies }
func (a Auth) GetInactiveGuard() bool          { return a.InactiveGuard }
func (a Auth) GetSyncVerify() bool             { return a.SyncVerify }

func (a Auth) GetVerifyTimeout() time.Duration {
	return mustDuration(a.VerifyTimeoutExpression)
}

func (a Auth) GetSweepIdle() time.Duration {
	return mustDuration(a.SweepIdleExpression)
}

func (s Storage) GetTTL() time.Duration {
	return mustDuration(s.TTLExpression)
}

func mustDuration(expr string) time.Duration {
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}
