package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, one per error kind. Every AppError wraps exactly one of
// these; ClassifyKind maps any error back to its kind for response
// construction.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrTimeout     = errors.New("timeout")
	ErrUpstream    = errors.New("upstream failure")
	ErrPersistence = errors.New("persistence failure")
	ErrInternal    = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// BadRequest, Timeout, Upstream, Persistence, and Internal are convenience
// constructors for the five kinds, each defaulting to its kind's response
// envelope status code.
func BadRequest(format string, args ...any) *AppError {
	return Newf(ErrBadRequest, http.StatusBadRequest, format, args...)
}

func Timeout(format string, args ...any) *AppError {
	return Newf(ErrTimeout, http.StatusInternalServerError, format, args...)
}

func Upstream(format string, args ...any) *AppError {
	return Newf(ErrUpstream, http.StatusInternalServerError, format, args...)
}

func Persistence(format string, args ...any) *AppError {
	return Newf(ErrPersistence, http.StatusInternalServerError, format, args...)
}

func Internal(format string, args ...any) *AppError {
	return Newf(ErrInternal, http.StatusInternalServerError, format, args...)
}

// Kind is one of the five error kinds used throughout the response envelope
// and logging.
type Kind string

const (
	KindBadRequest  Kind = "BAD_REQUEST"
	KindTimeout     Kind = "TIMEOUT"
	KindUpstream    Kind = "UPSTREAM"
	KindPersistence Kind = "PERSISTENCE"
	KindInternal    Kind = "INTERNAL"
)

// ClassifyKind maps any error to its Kind. Errors not wrapping one of the
// sentinels classify as KindInternal.
func ClassifyKind(err error) Kind {
	switch {
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}

// HTTPStatusCode returns the status code an error carries, for sidecar HTTP
// surfaces (the CLI's stdio envelope uses ClassifyKind directly instead).
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch ClassifyKind(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
