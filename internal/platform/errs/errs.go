// Package errs implements the error taxonomy shared by every component:
// NotFound, InvalidArgument, AlreadyExists, Conflict, Timeout, Unavailable, Internal.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error the way the HTTP layer needs to translate it.
type Code string

const (
	NotFound        Code = "NOT_FOUND"
	InvalidArgument Code = "INVALID_ARGUMENT"
	AlreadyExists   Code = "ALREADY_EXISTS"
	Conflict        Code = "CONFLICT"
	Timeout         Code = "TIMEOUT"
	Unavailable     Code = "UNAVAILABLE"
	Internal        Code = "INTERNAL"
)

// Error wraps an underlying cause with a taxonomy code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) *Error        { return newf(NotFound, format, args...) }
func NewInvalidArgument(format string, args ...any) *Error { return newf(InvalidArgument, format, args...) }
func NewAlreadyExists(format string, args ...any) *Error   { return newf(AlreadyExists, format, args...) }
func NewConflict(format string, args ...any) *Error        { return newf(Conflict, format, args...) }
func NewTimeout(format string, args ...any) *Error         { return newf(Timeout, format, args...) }
func NewUnavailable(format string, args ...any) *Error     { return newf(Unavailable, format, args...) }
func NewInternal(format string, args ...any) *Error        { return newf(Internal, format, args...) }

// Wrap annotates an existing error with a taxonomy code, preserving it for errors.Is/As.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the taxonomy code of err, defaulting to Internal for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// HTTPStatus maps a taxonomy code to the status code the API layer returns.
func HTTPStatus(code Code) int {
	switch code {
	case NotFound:
		return http.StatusNotFound
	case InvalidArgument:
		return http.StatusBadRequest
	case AlreadyExists:
		return http.StatusConflict
	case Conflict:
		return http.StatusConflict
	case Timeout:
		return http.StatusRequestTimeout
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
