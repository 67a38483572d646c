// Package errors holds the sentinel errors shared by the index loader, the
// query engine and the HTTP surfaces. AppError pins an explicit status and a
// client-safe message to a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedIndex    = errors.New("malformed index")
	ErrIndexNotLoaded    = errors.New("index not loaded")
	ErrSourceUnavailable = errors.New("index source unavailable")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrTimeout           = errors.New("operation timed out")
	ErrCacheUnavailable  = errors.New("cache unavailable")
	ErrDocumentNotFound  = errors.New("document not found")
)

// statusBySentinel is checked in order; the first match decides.
var statusBySentinel = []struct {
	err    error
	status int
}{
	{ErrDocumentNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrMalformedIndex, http.StatusUnprocessableEntity},
	{ErrIndexNotLoaded, http.StatusServiceUnavailable},
	{ErrSourceUnavailable, http.StatusServiceUnavailable},
	{ErrCacheUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
}

// AppError is safe to show to clients: Message is what the response body
// carries.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Malformedf reports a structural violation found while loading an index.
func Malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedIndex, fmt.Sprintf(format, args...))
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedIndex)
}

// HTTPStatusCode maps err to a response status. An AppError's own status
// wins; unrecognised errors are 500.
func HTTPStatusCode(err error) int {
	if appErr := (*AppError)(nil); errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, m := range statusBySentinel {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
