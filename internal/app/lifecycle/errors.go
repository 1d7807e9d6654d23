package lifecycle

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the Engine matches exactly one of
// these with errors.Is. Only ErrStorage is worth retrying.
var (
	// ErrNotFound: unresolvable identity, email or relationship id.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a pending or active relationship already exists for the
	// pair, or a restore would create a second one.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized: the actor may not perform this transition.
	ErrUnauthorized = errors.New("not authorized")
	// ErrInvalidState: the transition is not legal from the current status,
	// including a lost compare-and-set race.
	ErrInvalidState = errors.New("invalid state")
	// ErrStorage: the underlying store failed.
	ErrStorage = errors.New("storage unavailable")
)

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
}

func unauthorized(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrUnauthorized}, args...)...)
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidState}, args...)...)
}

func storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
