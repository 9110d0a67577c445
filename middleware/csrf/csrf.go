// Package csrf protects form posts of the portal. The token of a browser
// lives in that browser's client namespace of the portal storage, next to
// its session record, so it survives restarts when storage is shared.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	textCodeMissing  = "CSRF_TOKEN_MISSING"
	textCodeMismatch = "CSRF_TOKEN_MISMATCH"
	textCodeExpired  = "CSRF_TOKEN_EXPIRED"
	textCodeNoClient = "CSRF_CLIENT_MISSING"
)

var (
	ErrTokenMismatch = errors.New("CSRF token mismatch", errors.CategoryAuthz).
				WithTextCode(textCodeMismatch).
				WithCode(errors.CodeForbidden)
	ErrTokenMissing = errors.New("CSRF token missing", errors.CategoryBadInput).
			WithTextCode(textCodeMissing).
			WithCode(errors.CodeBadRequest)
	ErrTokenExpired = errors.New("CSRF token expired", errors.CategoryAuthz).
			WithTextCode(textCodeExpired).
			WithCode(errors.CodeForbidden)
	ErrClientMissing = errors.New("CSRF protection requires a client id", errors.CategoryInternal).
				WithTextCode(textCodeNoClient).
				WithCode(errors.CodeInternal)
)

// DefaultTokenLength is the default length for CSRF tokens
const DefaultTokenLength = 32

// DefaultContextKey is the default key for storing CSRF tokens in context
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// DefaultStorageKey is the entry holding the token in the client namespace
const DefaultStorageKey = "csrf"

// DefaultClientKey is the locals key holding the client id
const DefaultClientKey = "portal_client_id"

// Storage is the namespaced key value store shared with the session
// records. Any portal storage backend satisfies it.
type Storage interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	SetMany(ctx context.Context, namespace string, values map[string]string) error
	Delete(ctx context.Context, namespace string, keys ...string) error
}

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// Storage holds the issued tokens, required
	Storage Storage

	// TokenLength defines the length of the generated token
	TokenLength int

	// ContextKey defines the key for storing the token in context
	ContextKey string

	// ClientKey is the locals key where the client id was published
	ClientKey string

	// StorageKey is the entry name inside the client namespace
	StorageKey string

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// ErrorHandler defines the error handler
	ErrorHandler router.ErrorHandler

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	// Expiration defines how long tokens are valid
	Expiration time.Duration

	now func() time.Time
}

// New creates a new CSRF middleware. It must run after the middleware
// that assigns the client id.
func New(config Config) router.MiddlewareFunc {
	cfg := configDefault(config)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			clientID, _ := ctx.Locals(cfg.ClientKey).(string)
			if clientID == "" {
				return cfg.ErrorHandler(ctx, ErrClientMissing)
			}

			token, err := issue(ctx.Context(), cfg, clientID)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return ctx.Next()
			}

			if err := validate(ctx, cfg, token); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return ctx.Next()
		}
	}
}

// Rotate forgets the token of a client, the next request gets a new one
func Rotate(ctx context.Context, storage Storage, clientID string) error {
	return storage.Delete(ctx, clientID, DefaultStorageKey)
}

// issue returns the live token of the client, minting one when the stored
// token is absent or expired
func issue(ctx context.Context, cfg Config, clientID string) (string, error) {
	raw, ok, err := cfg.Storage.Get(ctx, clientID, cfg.StorageKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read CSRF token")
	}

	if ok {
		if token, issued, valid := decode(raw); valid && !expired(cfg, issued) {
			return token, nil
		}
	}

	token, err := generateToken(cfg.TokenLength)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate CSRF token")
	}

	if err := cfg.Storage.SetMany(ctx, clientID, map[string]string{
		cfg.StorageKey: encode(token, cfg.now()),
	}); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to store CSRF token")
	}

	return token, nil
}

func validate(ctx router.Context, cfg Config, expected string) error {
	received := ctx.FormValue(cfg.FormFieldName)
	if received == "" {
		received = ctx.GetString(cfg.HeaderName, "")
	}

	if received == "" {
		return ErrTokenMissing
	}

	if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		return ErrTokenMismatch
	}

	return nil
}

func encode(token string, issued time.Time) string {
	return token + ":" + strconv.FormatInt(issued.Unix(), 10)
}

func decode(raw string) (string, time.Time, bool) {
	token, ts, found := strings.Cut(raw, ":")
	if !found || token == "" {
		return "", time.Time{}, false
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return token, time.Unix(sec, 0), true
}

func expired(cfg Config, issued time.Time) bool {
	return cfg.Expiration > 0 && cfg.now().After(issued.Add(cfg.Expiration))
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func configDefault(cfg Config) Config {
	if cfg.Storage == nil {
		panic("Missing Storage in CSRF middleware...")
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ClientKey == "" {
		cfg.ClientKey = DefaultClientKey
	}

	if cfg.StorageKey == "" {
		cfg.StorageKey = DefaultStorageKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.now == nil {
		cfg.now = time.Now
	}

	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "CSRF validation error").
			WithCode(errors.CodeInternal)
	}
	return ctx.Status(richErr.Code).SendString(richErr.Message)
}

// CSRFTemplateHelpers returns template helper placeholders for CSRF
// protection, used when rendering outside a request
func CSRFTemplateHelpers() map[string]any {
	return map[string]any{
		"csrf_token": "",
		"csrf_field": `<input type="hidden" name="` + DefaultFormFieldName + `" value="">`,
	}
}

// CSRFTemplateHelpersWithRouter returns template helpers with the token
// published by the middleware
func CSRFTemplateHelpersWithRouter(ctx router.Context, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token, _ := ctx.Locals(tokenKey).(string)

	fieldName := DefaultFormFieldName
	if val, ok := ctx.Locals(tokenKey + "_field").(string); ok && val != "" {
		fieldName = val
	}

	return map[string]any{
		"csrf_token": token,
		"csrf_field": `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
	}
}
