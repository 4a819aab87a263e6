// Package meld defines the error kinds and execution context shared by
// every layer of the identity consolidation engine.
package meld

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the failure categories the API
// surfaces to callers.
type Kind int

const (
	// KindInvalidValue indicates a precondition on arguments failed.
	KindInvalidValue Kind = iota
	// KindNotFound indicates a referenced entity is absent.
	KindNotFound
	// KindAlreadyExists indicates a uniqueness violation on insert.
	KindAlreadyExists
	// KindDuplicateRange indicates an enrollment range is enclosed by an
	// existing one.
	KindDuplicateRange
	// KindEqualIndividual indicates a merge target appears among its sources.
	KindEqualIndividual
	// KindLocked indicates a mutation targeted a locked individual.
	KindLocked
	// KindJobError indicates queue misconfiguration or an unsupported
	// periodic job.
	KindJobError
	// KindInvalidRequest indicates a malformed request, such as a page
	// past the end of a result set.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindInvalidValue:
		return "invalid value"
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindDuplicateRange:
		return "duplicate range"
	case KindEqualIndividual:
		return "equal individual"
	case KindLocked:
		return "locked"
	case KindJobError:
		return "job error"
	case KindInvalidRequest:
		return "invalid request"
	default:
		return "unknown"
	}
}

// Error is a classified engine error with a human-readable message.
type Error struct {
	Kind    Kind
	Message string

	// EntityMK carries the main key of the individual that caused an
	// AlreadyExists failure, so callers can report the offending record.
	EntityMK string
}

func (e *Error) Error() string { return e.Message }

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidValuef reports a failed argument precondition.
func InvalidValuef(format string, args ...any) *Error {
	return Errorf(KindInvalidValue, format, args...)
}

// NotFoundf reports an absent entity.
func NotFoundf(format string, args ...any) *Error {
	return Errorf(KindNotFound, format, args...)
}

// AlreadyExistsf reports a uniqueness violation. mk identifies the
// individual already owning the conflicting record and may be empty.
func AlreadyExistsf(mk string, format string, args ...any) *Error {
	err := Errorf(KindAlreadyExists, format, args...)
	err.EntityMK = mk
	return err
}

// DuplicateRangef reports an enrollment range enclosed by an existing one.
func DuplicateRangef(format string, args ...any) *Error {
	return Errorf(KindDuplicateRange, format, args...)
}

// Lockedf reports a mutation against a locked individual.
func Lockedf(format string, args ...any) *Error {
	return Errorf(KindLocked, format, args...)
}

// JobErrorf reports a job runtime failure.
func JobErrorf(format string, args ...any) *Error {
	return Errorf(KindJobError, format, args...)
}

// IsKind reports whether err (or an error it wraps) is a classified
// error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound is shorthand for IsKind(err, KindNotFound).
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsInvalidValue is shorthand for IsKind(err, KindInvalidValue).
func IsInvalidValue(err error) bool { return IsKind(err, KindInvalidValue) }

// IsAlreadyExists is shorthand for IsKind(err, KindAlreadyExists).
func IsAlreadyExists(err error) bool { return IsKind(err, KindAlreadyExists) }

// IsLocked is shorthand for IsKind(err, KindLocked).
func IsLocked(err error) bool { return IsKind(err, KindLocked) }
