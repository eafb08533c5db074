package errors

import (
	"errors"
	"fmt"
)

// ErrorWrapper tags errors from one operation with a module-qualified op
// name and a message safe to return to API clients.
type ErrorWrapper struct {
	op string
}

// NewWrapper returns a wrapper for module.operation.
func NewWrapper(module, operation string) *ErrorWrapper {
	return &ErrorWrapper{op: module + "." + operation}
}

// Wrap returns nil for a nil err.
func (w *ErrorWrapper) Wrap(err error, userMessage string) error {
	if err == nil {
		return nil
	}
	return &WrappedError{Op: w.op, Cause: err, UserMessage: userMessage}
}

// WrappedError keeps the internal cause for logs and Sentry, and the
// client-facing text separately.
type WrappedError struct {
	Op          string
	Cause       error
	UserMessage string
}

func (e *WrappedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *WrappedError) Unwrap() error { return e.Cause }

// GetUserMessage returns the outermost client-facing message in the chain.
// Errors that were never wrapped expose their own text.
func GetUserMessage(err error) string {
	if err == nil {
		return ""
	}
	var we *WrappedError
	if errors.As(err, &we) {
		return we.UserMessage
	}
	return err.Error()
}
