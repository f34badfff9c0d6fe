package ignis

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPoolCapacity is returned when a context pool capacity is not a positive power of two.
	ErrInvalidPoolCapacity = errors.New("ignis: pool capacity must be a positive power of two")
	// ErrEngineDisposed is returned by operations on a disposed engine.
	ErrEngineDisposed = errors.New("ignis: engine disposed")
	// ErrNotListening is returned when stopping a listener that is not listening.
	ErrNotListening = errors.New("ignis: listener is not listening")
	// ErrHeaderOverflow reports a request header block larger than General.MaxHeaderSize.
	ErrHeaderOverflow = errors.New("ignis: request header block exceeds limit")
)

// HTTPError represents an HTTP error with status code, message, and optional details.
// Middleware may return it to choose the status of the fallback error response.
type HTTPError struct {
	Code    int
	Message string
	Details any
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds additional details to the HTTPError and returns the modified error.
func (e *HTTPError) WithDetails(details any) *HTTPError {
	e.Details = details
	return e
}

// ParseError describes a request that could not be accepted as framed.
// When Fatal is set the connection cannot be reused because the body framing is unknown.
type ParseError struct {
	Status int
	Reason string
	Fatal  bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ignis: %s (%d)", e.Reason, e.Status)
}

// MiddlewareError records the middleware a request error originated from.
type MiddlewareError struct {
	Name string
	Err  error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("ignis: middleware %q: %v", e.Name, e.Err)
}

// Unwrap returns the original error.
func (e *MiddlewareError) Unwrap() error {
	return e.Err
}

// PanicError is produced when a middleware panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("ignis: panic: %v", e.Value)
}

// Unwrap exposes a panic value that is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// statusOf returns the response status for an unhandled request error.
func statusOf(err error) (int, string) {
	var he *HTTPError
	if errors.As(err, &he) && he.Code >= 400 && he.Code < 600 {
		return he.Code, he.Message
	}
	return 500, ""
}
