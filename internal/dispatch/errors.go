package dispatch

import "errors"

// ValidationError reports a malformed or missing request field. Always
// recoverable: the client fixes the input and resubmits.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrUnauthorized is returned when the admin key on a privileged operation
// does not match.
var ErrUnauthorized = errors.New("unauthorized access")
