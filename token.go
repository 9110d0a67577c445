package portal

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
)

// TokenInspector looks at persisted bearer tokens before they are sent
// to the backend. Without a key function only the exp claim of JWT tokens
// is read; opaque tokens are left for the backend to judge.
type TokenInspector struct {
	keyfunc jwt.Keyfunc
	now     func() time.Time
	leeway  time.Duration
}

// TokenInspectorOption configures a TokenInspector
type TokenInspectorOption func(*TokenInspector)

// WithKeyfunc enables signature verification
func WithKeyfunc(kf jwt.Keyfunc) TokenInspectorOption {
	return func(t *TokenInspector) {
		t.keyfunc = kf
	}
}

// WithTokenClock overrides the clock
func WithTokenClock(now func() time.Time) TokenInspectorOption {
	return func(t *TokenInspector) {
		t.now = now
	}
}

// WithTokenLeeway tolerates clock skew
func WithTokenLeeway(d time.Duration) TokenInspectorOption {
	return func(t *TokenInspector) {
		t.leeway = d
	}
}

// NewTokenInspector builds an inspector
func NewTokenInspector(opts ...TokenInspectorOption) *TokenInspector {
	t := &TokenInspector{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewJWKSKeyfunc fetches a JWK Set and keeps it refreshed in the background
func NewJWKSKeyfunc(url string, logger Logger) (jwt.Keyfunc, error) {
	if logger == nil {
		logger = defLogger{}
	}

	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Error("JWKS background refresh failed", "url", url, "error", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "load JWK set").
			WithMetadata(map[string]any{"url": url})
	}
	return jwks.Keyfunc, nil
}

// Check returns ErrTokenExpired for expired tokens and ErrSessionRejected
// for tokens that fail verification.
func (t *TokenInspector) Check(token string) error {
	if t == nil {
		return nil
	}

	if token == "" {
		return ErrSessionMissing
	}

	if t.keyfunc != nil {
		_, err := jwt.Parse(token, t.keyfunc,
			jwt.WithTimeFunc(t.now),
			jwt.WithLeeway(t.leeway),
		)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, jwt.ErrTokenExpired):
			return withSource(ErrTokenExpired, err, "")
		default:
			return withSource(ErrSessionRejected, err, "invalid session token")
		}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	if t.now().After(exp.Time.Add(t.leeway)) {
		return ErrTokenExpired
	}

	return nil
}

// ExpiresAt returns the exp claim of a JWT token without verifying it
func (t *TokenInspector) ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
