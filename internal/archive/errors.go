package archive

import (
	"errors"
	"fmt"
)

// ErrArchiving is the root of every archive state machine error.
var ErrArchiving = errors.New("archive")

// Specific archive errors. All wrap ErrArchiving.
var (
	// ErrPathMismatch is returned when the tool reports a different path
	// from the one that was queried.
	ErrPathMismatch = fmt.Errorf("%w: reported path does not match", ErrArchiving)

	// ErrUnparseable is returned when the tool's status output cannot be
	// parsed, including when the tool produced no output at all.
	ErrUnparseable = fmt.Errorf("%w: unparseable status", ErrArchiving)

	// ErrRegistrationFailed is returned when a file is still not registered
	// after the single permitted retry.
	ErrRegistrationFailed = fmt.Errorf("%w: registration failed", ErrArchiving)

	// ErrPrecondition is returned (via *PreconditionError) when a file's
	// state does not allow the requested transition.
	ErrPrecondition = fmt.Errorf("%w: precondition not met", ErrArchiving)
)

// ErrCommandFailed is returned by a Backend when the tool ran but exited
// with a non-zero status. The Manager treats it as "no output".
var ErrCommandFailed = errors.New("archive: hsm command failed")

// PreconditionError describes a transition refused because of the file's
// current state.
type PreconditionError struct {
	Op   Op
	Path string

	// State is the state that caused the refusal.
	State State

	// Present is true when State being set blocks the transition (dirty),
	// false when State is required but missing.
	Present bool
}

func (e *PreconditionError) Error() string {
	if e.Present {
		return fmt.Sprintf("archive: cannot %s %s: file is %s", e.Op, e.Path, e.State)
	}
	return fmt.Sprintf("archive: cannot %s %s: file is not %s", e.Op, e.Path, e.State)
}

// Unwrap makes errors.Is match ErrPrecondition and ErrArchiving.
func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}

// WalkError is yielded by WalkRegister for an entry the walk could not
// visit, such as an unreadable directory or a cancelled walk. No
// registration was attempted for it.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("archive: walking %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}
