package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so the API layer can translate them 1:1
// to responses without inspecting messages.
type Kind string

const (
	// KindValidation covers caller mistakes: wrong state, wrong role,
	// missing proforma, deciding an already-decided step.
	KindValidation Kind = "validation"

	// KindConflict signals a version mismatch under concurrent writes.
	// The caller must refetch and retry.
	KindConflict Kind = "conflict"

	// KindNotFound signals an unknown request id.
	KindNotFound Kind = "not_found"

	// KindGeneration signals a fatal PO rendering failure. The
	// triggering transaction is rolled back entirely.
	KindGeneration Kind = "generation"

	// KindInfra signals storage or database failure; the system, not
	// the request, is at fault.
	KindInfra Kind = "infra"
)

// ErrAlreadyDecided marks the idempotent duplicate-decision case. It is
// wrapped in a KindValidation error so callers can errors.Is it.
var ErrAlreadyDecided = errors.New("approval step already decided")

// Error is the structured engine error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or empty when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func validationErr(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func alreadyDecidedErr(op string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: "decision already recorded", Err: ErrAlreadyDecided}
}

func conflictErr(op string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Msg: "concurrent modification detected", Err: err}
}

func notFoundErr(op string, id fmt.Stringer) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("purchase request %s not found", id)}
}

func generationErr(op string, err error) *Error {
	return &Error{Kind: KindGeneration, Op: op, Msg: "purchase order generation failed", Err: err}
}

func infraErr(op, msg string, err error) *Error {
	return &Error{Kind: KindInfra, Op: op, Msg: msg, Err: err}
}
