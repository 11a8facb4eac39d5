package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error so callers can tell failures apart without parsing messages.
type Kind string

const (
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindGenerationFailed  Kind = "GENERATION_FAILED"
	KindInternal          Kind = "INTERNAL"
)

// Error is the typed error returned by services for every expected failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is matching. They compare by kind only.
var (
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrGenerationFailed  = &Error{Kind: KindGenerationFailed}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func PermissionDenied(format string, args ...interface{}) error {
	return newf(KindPermissionDenied, format, args...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return newf(KindInvalidTransition, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// GenerationFailed wraps the cause of a failed purchase order generation.
func GenerationFailed(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindGenerationFailed, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalidTransition:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
