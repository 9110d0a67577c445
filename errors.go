package portal

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

// ErrorKind classifies failures reported by the session manager
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindDeactivated    ErrorKind = "deactivated"
	KindTransport      ErrorKind = "transport"
	KindMalformedState ErrorKind = "malformed_state"
	KindUnknown        ErrorKind = "unknown"
)

// User facing messages
const (
	MessageDeactivated             = "Your account has been deactivated. Please contact administrator."
	MessageInactive                = "Your account is inactive. Please contact support."
	MessageLoginFailed             = "Login failed"
	MessageRegisterConflict        = "Username or email already exists"
	MessageRegisterInvalid         = "Invalid registration data"
	MessageRegisterFailed          = "Registration failed"
	MessageRegisterNetwork         = "Registration failed. Please try again."
	MessageRegisterInvalidResponse = "Registration failed - invalid response"
	MessageLoginThrottled          = "Too many login attempts. Please wait and try again."
	MessageLoggedOut               = "Logged out successfully"
	MessageLogoutFailed            = "Logout failed"
)

const (
	textCodeDeactivated = "ACCOUNT_DEACTIVATED"
	textCodeInactive    = "ACCOUNT_INACTIVE"
	textCodeTransport   = "BACKEND_UNAVAILABLE"
	textCodeMalformed   = "MALFORMED_RECORD"
	textCodeExpired     = "TOKEN_EXPIRED"
)

var (
	// ErrAccountDeactivated is returned when the backend reports an inactive account
	ErrAccountDeactivated = errors.New(MessageDeactivated, errors.CategoryAuthz).
				WithTextCode(textCodeDeactivated).
				WithCode(errors.CodeForbidden)

	// ErrAccountInactive is raised by the route guard blanket check
	ErrAccountInactive = errors.New(MessageInactive, errors.CategoryAuthz).
				WithTextCode(textCodeInactive).
				WithCode(errors.CodeForbidden)

	ErrLoginFailed = errors.New(MessageLoginFailed, errors.CategoryAuth).
			WithTextCode("LOGIN_FAILED").
			WithCode(errors.CodeUnauthorized)

	ErrLoginThrottled = errors.New(MessageLoginThrottled, errors.CategoryRateLimit).
				WithTextCode("LOGIN_THROTTLED").
				WithCode(http.StatusTooManyRequests)

	ErrRegistrationConflict = errors.New(MessageRegisterConflict, errors.CategoryConflict).
				WithTextCode("REGISTRATION_CONFLICT").
				WithCode(errors.CodeConflict)

	ErrRegistrationInvalid = errors.New(MessageRegisterInvalid, errors.CategoryValidation).
				WithTextCode("REGISTRATION_INVALID").
				WithCode(errors.CodeBadRequest)

	ErrRegistrationFailed = errors.New(MessageRegisterFailed, errors.CategoryOperation).
				WithTextCode("REGISTRATION_FAILED").
				WithCode(http.StatusBadGateway)

	// ErrSessionMissing there is no session for the client
	ErrSessionMissing = errors.New("no active session", errors.CategoryAuth).
				WithTextCode("SESSION_MISSING").
				WithCode(errors.CodeUnauthorized)

	// ErrSessionRejected the backend did not confirm the session
	ErrSessionRejected = errors.New("session rejected by identity backend", errors.CategoryAuth).
				WithTextCode("SESSION_REJECTED").
				WithCode(errors.CodeUnauthorized)

	// ErrTokenExpired the persisted token carries an exp in the past
	ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
			WithTextCode(textCodeExpired).
			WithCode(errors.CodeUnauthorized)

	ErrMalformedRecord = errors.New("malformed credential record", errors.CategoryBadInput).
				WithTextCode(textCodeMalformed).
				WithCode(errors.CodeBadRequest)

	ErrBackendUnavailable = errors.New("identity backend unavailable", errors.CategoryOperation).
				WithTextCode(textCodeTransport).
				WithCode(http.StatusBadGateway)

	ErrInsufficientRole = errors.New("insufficient role for route", errors.CategoryAuthz).
				WithTextCode("ROLE_FORBIDDEN").
				WithCode(errors.CodeForbidden)

	ErrInvalidClient = errors.New("invalid client identifier", errors.CategoryBadInput).
				WithTextCode("INVALID_CLIENT").
				WithCode(errors.CodeBadRequest)
)

// KindOf maps an error to the ErrorKind taxonomy
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return KindUnknown
	}

	switch richErr.TextCode {
	case textCodeDeactivated, textCodeInactive:
		return KindDeactivated
	case textCodeTransport:
		return KindTransport
	case textCodeMalformed:
		return KindMalformedState
	}

	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return KindValidation
	case errors.CategoryConflict:
		return KindConflict
	case errors.CategoryAuth:
		return KindAuthentication
	case errors.CategoryAuthz:
		return KindAuthorization
	default:
		return KindUnknown
	}
}

func isTokenExpired(err error) bool {
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == textCodeExpired
}

// withSource returns a copy of the sentinel carrying the backend message
// and the underlying cause
func withSource(sentinel *errors.Error, source error, message string) *errors.Error {
	out := sentinel.Clone()
	if message != "" {
		out.Message = message
	}
	if source != nil {
		out.Source = source
	}
	return out
}
