// Package apperr defines the error taxonomy shared by the stores, the REST
// handlers and the live gateway. Every failure a caller can act on is one of
// the kinds below; handlers map kinds to transport codes in exactly one place.
package apperr

import "errors"

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSelfReference: a user acted on themselves (e.g. self friend request).
	KindSelfReference
	// KindConflict: the operation collides with existing state (duplicate
	// relationship, response already given).
	KindConflict
	// KindForbidden: the caller is not a party to the target.
	KindForbidden
	// KindNotFound: unknown id, or an id the caller may not see. The two are
	// deliberately indistinguishable so existence never leaks.
	KindNotFound
	// KindValidation: malformed input (empty content, bad cursor).
	KindValidation
)

// Error is a classified application error with a stable machine code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// SelfReference reports a user acting on themselves.
func SelfReference(message string) *Error {
	return newError(KindSelfReference, "self_reference", message)
}

// Conflict reports a collision with existing state.
func Conflict(message string) *Error {
	return newError(KindConflict, "conflict", message)
}

// Forbidden reports an action by a non-party.
func Forbidden(message string) *Error {
	return newError(KindForbidden, "forbidden", message)
}

// NotFound reports an unknown or invisible id.
func NotFound(message string) *Error {
	return newError(KindNotFound, "not_found", message)
}

// Validation reports malformed input.
func Validation(message string) *Error {
	return newError(KindValidation, "validation", message)
}

// KindOf extracts the Kind from err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// CodeOf extracts the machine code from err, or "internal" for untyped errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal"
}
