package backend

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	// TextCodeTransport marks network level failures
	TextCodeTransport = "BACKEND_TRANSPORT"
	// TextCodeHTTP marks non 2xx responses, Code holds the status
	TextCodeHTTP = "BACKEND_HTTP"
)

var errEmptyData = errors.New("response carries no data", errors.CategoryBadInput).
	WithTextCode("BACKEND_EMPTY_DATA").
	WithCode(errors.CodeBadRequest)

func transportError(err error, method, path string) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, "backend request failed").
		WithTextCode(TextCodeTransport).
		WithCode(http.StatusBadGateway).
		WithMetadata(map[string]any{
			"method": method,
			"path":   path,
		})
}

func httpError(env *Envelope, method, path string) *errors.Error {
	message := env.MessageOr(http.StatusText(env.Status))

	var out *errors.Error
	switch env.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		out = errors.New(message, errors.CategoryValidation)
	case http.StatusUnauthorized:
		out = errors.New(message, errors.CategoryAuth)
	case http.StatusForbidden:
		out = errors.New(message, errors.CategoryAuthz)
	case http.StatusNotFound:
		out = errors.New(message, errors.CategoryNotFound)
	case http.StatusConflict:
		out = errors.New(message, errors.CategoryConflict)
	case http.StatusTooManyRequests:
		out = errors.New(message, errors.CategoryRateLimit)
	default:
		out = errors.New(message, errors.CategoryOperation)
	}

	return out.
		WithTextCode(TextCodeHTTP).
		WithCode(env.Status).
		WithMetadata(map[string]any{
			"method": method,
			"path":   path,
			"error":  env.Error,
		})
}

// StatusOf returns the HTTP status carried by a backend error, 0 otherwise
func StatusOf(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeHTTP {
		return richErr.Code
	}
	return 0
}

// IsTransport reports a network level failure
func IsTransport(err error) bool {
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == TextCodeTransport
}

// IsUnauthorized reports a 401 response
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
