package portal

// Result is the outcome of a manager operation. Failures carry a
// user facing Message and a Kind for programmatic handling.
type Result[T any] struct {
	Success bool
	Data    T
	Message string
	Kind    ErrorKind
	Err     error
	// Fields holds per field validation messages
	Fields map[string]string
}

// Ok builds a successful result
func Ok[T any](data T, message ...string) Result[T] {
	r := Result[T]{Success: true, Data: data}
	if len(message) > 0 {
		r.Message = message[0]
	}
	return r
}

// Fail builds a failed result, the kind is derived from err when not given
func Fail[T any](err error, message string, kind ...ErrorKind) Result[T] {
	r := Result[T]{Err: err, Message: message, Kind: KindOf(err)}
	if len(kind) > 0 {
		r.Kind = kind[0]
	}
	if r.Kind == KindNone {
		r.Kind = KindUnknown
	}
	return r
}

// WithFields attaches field errors
func (r Result[T]) WithFields(fields map[string]string) Result[T] {
	r.Fields = fields
	return r
}
