// Package apperr defines the error kinds surfaced to API clients. Every kind maps
// to one HTTP status and one machine-stable reason code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindDuplicateIdentity Kind = "DUPLICATE_IDENTITY"
	KindAuthFailed        Kind = "AUTH_FAILED"
	KindTokenInvalid      Kind = "TOKEN_INVALID"
	KindBadAuthScheme     Kind = "BAD_AUTH_SCHEME"
	KindRefreshInvalid    Kind = "REFRESH_INVALID"
	KindNotFound          Kind = "NOT_FOUND"
	KindValidation        Kind = "VALIDATION_FAILED"
	KindTooManyAttempts   Kind = "TOO_MANY_ATTEMPTS"
	KindInternal          Kind = "INTERNAL"
)

// Error is a classified error. Message is safe to show to clients, Cause is not.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus returns the status code for the kind.
func (e *Error) HTTPStatus() int {
	return StatusOf(e.Kind)
}

func StatusOf(k Kind) int {
	switch k {
	case KindDuplicateIdentity, KindValidation:
		return http.StatusBadRequest
	case KindAuthFailed, KindTokenInvalid, KindRefreshInvalid:
		return http.StatusUnauthorized
	case KindBadAuthScheme:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyAttempts:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks. They carry the uniform client message of each kind.
var (
	ErrDuplicateIdentity = &Error{Kind: KindDuplicateIdentity, Message: "username or email already registered"}
	ErrAuthFailed        = &Error{Kind: KindAuthFailed, Message: "incorrect username or password"}
	ErrTokenInvalid      = &Error{Kind: KindTokenInvalid, Message: "could not validate credentials"}
	ErrBadAuthScheme     = &Error{Kind: KindBadAuthScheme, Message: "invalid authentication scheme, use Bearer"}
	ErrRefreshInvalid    = &Error{Kind: KindRefreshInvalid, Message: "refresh token is invalid or expired"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrTooManyAttempts   = &Error{Kind: KindTooManyAttempts, Message: "too many failed login attempts, try again later"}
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal server error"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an internal cause to a kind, keeping the kind's client message.
func Wrap(kind Kind, cause error) *Error {
	msg := ErrInternal.Message
	for _, s := range []*Error{ErrDuplicateIdentity, ErrAuthFailed, ErrTokenInvalid, ErrBadAuthScheme,
		ErrRefreshInvalid, ErrNotFound, ErrTooManyAttempts} {
		if s.Kind == kind {
			msg = s.Message
			break
		}
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, cause)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

// From classifies any error. Unclassified errors become INTERNAL.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
