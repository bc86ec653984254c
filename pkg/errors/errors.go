package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Fields  []string `json:"fields,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their sentinel.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err using the code and status of a sentinel.
func WrapAs(sentinel *Error, err error, message string) *Error {
	if message == "" {
		message = sentinel.Message
	}
	return Wrap(err, sentinel.Code, sentinel.Status, message)
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "record not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUpload             = New("UPLOAD_ERROR", http.StatusBadGateway, "image upload failed")
	ErrRemoteUnavailable  = New("REMOTE_UNAVAILABLE", http.StatusServiceUnavailable, "remote store unavailable")
	ErrInvalidField       = New("INVALID_FIELD", http.StatusBadRequest, "unknown searchable field")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Validation builds a validation error listing the offending field names.
func Validation(message string, fields ...string) *Error {
	err := Clone(ErrValidation, message)
	if len(fields) > 0 {
		err.Fields = append([]string(nil), fields...)
	}
	return err
}

// InvalidField reports search fields that are not part of the schema being searched.
func InvalidField(schema string, fields ...string) *Error {
	err := Clone(ErrInvalidField, fmt.Sprintf("unknown searchable field for %s", schema))
	err.Fields = append([]string(nil), fields...)
	return err
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	if len(err.Fields) > 0 {
		clone.Fields = append([]string(nil), err.Fields...)
	}
	return &clone
}

// IsRetryable reports whether the failure is transient from the caller's point of view.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}
