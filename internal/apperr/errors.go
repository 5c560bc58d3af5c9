// Package apperr defines the error taxonomy shared by the domain packages and
// its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP layer
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindResourceExhausted
	KindDuplicate
	KindAuth
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindDuplicate:
		return "duplicate"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error carries a kind and a user-visible message. Err, when set, is the
// underlying cause and is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values by kind and message so package level
// sentinels can be compared with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func newErr(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Validation(msg string) *Error        { return newErr(KindValidation, msg) }
func NotFound(msg string) *Error          { return newErr(KindNotFound, msg) }
func StateConflict(msg string) *Error     { return newErr(KindStateConflict, msg) }
func ResourceExhausted(msg string) *Error { return newErr(KindResourceExhausted, msg) }
func Duplicate(msg string) *Error         { return newErr(KindDuplicate, msg) }
func Auth(msg string) *Error              { return newErr(KindAuth, msg) }
func Forbidden(msg string) *Error         { return newErr(KindForbidden, msg) }

// Wrap attaches a cause to a copy of e
func Wrap(e *Error, cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the user-visible message for err. Internal errors get a
// generic message so storage details never leak.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return ae.Message
	}
	return "Internal server error"
}

// HTTPStatus maps a kind to its response status
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation, KindStateConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindResourceExhausted, KindForbidden:
		return http.StatusForbidden
	case KindDuplicate:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
