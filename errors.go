package ivm

import (
	"fmt"

	goerrors "gopkg.in/src-d/go-errors.v1"
)

// Error kinds per §7. A Kind lets call sites test the error family with
// Is() instead of string matching — the same discipline go-mysql-server
// uses for its own sql.Err* kinds, borrowed here since the teacher's own
// error handling (plain sentinel errors.New values) has no notion of
// "kind" at all.
var (
	// ErrProgramming is unrecoverable and surfaces to the caller
	// immediately: reserved characters in names, remove with an unknown
	// or already-retracted identity, an In() naming an undeclared child
	// array.
	ErrProgramming = goerrors.NewKind("ivm: programming error: %s")

	// ErrCallerData wraps an error returned by a user-supplied predicate
	// or derived-property function. The pipeline commits nothing for the
	// event that triggered it. A panic raised by such a function is not
	// recovered: it propagates out of Add or Remove as a panic.
	ErrCallerData = goerrors.NewKind("ivm: caller function failed: %s")
)

func newProgrammingError(format string, args ...interface{}) error {
	return ErrProgramming.New(fmt.Sprintf(format, args...))
}

func newCallerDataError(cause error) error {
	return ErrCallerData.Wrap(cause, cause.Error())
}

func newUnknownIdentityError(id string) error {
	return ErrProgramming.New(fmt.Sprintf("remove: unknown identity %q", id))
}
