package apperr

import "errors"

// Error is a user-facing validation failure.
//
// Kind is the sentinel callers match with errors.Is; Field is empty for
// non-field errors (rendered as a message list instead of a field map).
type Error struct {
	Kind    error
	Field   string
	Message string
}

func New(kind error, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// Collect flattens err (including errors.Join trees) into its *Error leaves.
// It returns nil if any leaf is not an *Error, so callers can treat the whole
// failure as internal.
func Collect(err error) []*Error {
	if err == nil {
		return nil
	}
	var out []*Error
	if !collect(err, &out) {
		return nil
	}
	return out
}

func collect(err error, out *[]*Error) bool {
	var ae *Error
	if e, ok := err.(*Error); ok {
		*out = append(*out, e)
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !collect(e, out) {
				return false
			}
		}
		return true
	}
	if errors.As(err, &ae) {
		*out = append(*out, ae)
		return true
	}
	return false
}
