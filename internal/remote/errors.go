package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure so callers can branch without inspecting
// driver-specific error types.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnavailable means the store cannot be reached at all.
	KindUnavailable
	// KindConflict is a duplicate-key violation on insert.
	KindConflict
	// KindTransient covers timeouts and connection drops; the same write may
	// succeed if retried.
	KindTransient
	// KindQuery is a malformed or rejected statement.
	KindQuery
)

// Error is a tagged store failure: the operation that failed, the table it
// touched, and a kind the sync controller can branch on.
type Error struct {
	Op    string
	Table string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("remote %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, table string, kind Kind, err error) *Error {
	return &Error{Op: op, Table: table, Kind: kind, Err: err}
}

func kindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsConflict reports whether err is a duplicate-key violation.
func IsConflict(err error) bool {
	return kindOf(err) == KindConflict
}

// IsUnavailable reports whether err means the store is unreachable.
func IsUnavailable(err error) bool {
	return kindOf(err) == KindUnavailable
}

// IsTransient reports whether a retry of the same operation may succeed.
func IsTransient(err error) bool {
	k := kindOf(err)
	return k == KindTransient || k == KindUnavailable
}
