// Package apperr defines the error taxonomy returned by every public engine
// operation. The Message of an *Error is safe to show to players; the Cause
// is for server logs only.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindConflict          Kind = "CONFLICT"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindStore             Kind = "STORE_ERROR"
)

// GenericMessage is shown whenever the real cause must stay server-side.
const GenericMessage = "Something went wrong, please try again later."

// Error is a domain failure carrying a user-displayable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrStore             = &Error{Kind: KindStore}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InsufficientFunds(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

// Denied never mentions the target, so callers learn nothing about whether it exists.
func Denied() *Error {
	return &Error{Kind: KindPermissionDenied, Message: "You are not allowed to do that."}
}

// DeniedMsg is a permission failure with a custom message.
func DeniedMsg(format string, args ...any) *Error {
	return &Error{Kind: KindPermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a durability-layer failure. The message is always generic.
func Store(op string, cause error) *Error {
	return &Error{Kind: KindStore, Message: GenericMessage, Cause: fmt.Errorf("%s: %w", op, cause)}
}

// KindOf reports the kind of err, or KindStore for anything that is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// UserMessage returns a message that is safe to show to a player.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStore && e.Message != "" {
		return e.Message
	}
	return GenericMessage
}
