package pending

import "fmt"

// Error is a failure delivered to a handler. Code follows HTTP status
// semantics so it can be surfaced unchanged by the API.
type Error struct {
	Code    int
	Message string
}

// NewError returns an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

var (
	// ErrDuplicateIdentifier is delivered to a registration superseded by a
	// newer one with the same job ID.
	ErrDuplicateIdentifier = NewError(500, "duplicate speech recognition identifier")

	// ErrTimeout is delivered when no final result arrives in time.
	ErrTimeout = NewError(500, "timeout expired")
)
