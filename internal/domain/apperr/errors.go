package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable category for expected domain failures.
type Kind string

const (
	KindDoesNotExist   Kind = "DOES_NOT_EXIST"
	KindAlreadyExists  Kind = "ALREADY_EXISTS"
	KindNotAvailable   Kind = "NOT_AVAILABLE"
	KindOnCooldown     Kind = "ON_COOLDOWN"
	KindNotAllowed     Kind = "NOT_ALLOWED"
	KindOfflineTimeout Kind = "OFFLINE_TIMEOUT"
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindInternal       Kind = "INTERNAL"
)

// Sentinels for errors.Is matching. Every *Error of the same kind matches its sentinel.
var (
	ErrDoesNotExist   = &Error{Kind: KindDoesNotExist, Message: "entity does not exist"}
	ErrAlreadyExists  = &Error{Kind: KindAlreadyExists, Message: "entity already exists"}
	ErrNotAvailable   = &Error{Kind: KindNotAvailable, Message: "car is not available"}
	ErrOnCooldown     = &Error{Kind: KindOnCooldown, Message: "user is on reservation cooldown"}
	ErrNotAllowed     = &Error{Kind: KindNotAllowed, Message: "operation not allowed"}
	ErrOfflineTimeout = &Error{Kind: KindOfflineTimeout, Message: "car did not acknowledge in time"}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput, Message: "invalid input"}
)

// Error is an expected, recoverable outcome of a domain operation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind so callers can branch with errors.Is(err, apperr.ErrNotAvailable).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func DoesNotExist(format string, args ...any) error   { return New(KindDoesNotExist, format, args...) }
func AlreadyExists(format string, args ...any) error  { return New(KindAlreadyExists, format, args...) }
func NotAvailable(format string, args ...any) error   { return New(KindNotAvailable, format, args...) }
func OnCooldown(format string, args ...any) error     { return New(KindOnCooldown, format, args...) }
func NotAllowed(format string, args ...any) error     { return New(KindNotAllowed, format, args...) }
func OfflineTimeout(format string, args ...any) error { return New(KindOfflineTimeout, format, args...) }
func InvalidInput(format string, args ...any) error   { return New(KindInvalidInput, format, args...) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsExpected reports whether err is a domain outcome rather than an infrastructure failure.
func IsExpected(err error) bool {
	return KindOf(err) != KindInternal
}
