package process

import "errors"

// Errors returned by Runner.Run. Spawn failures such as exec.ErrNotFound
// are returned as-is.
var (
	// ErrExitStatus is returned when the command exits with a non-zero status.
	ErrExitStatus = errors.New("process: non-zero exit status")

	// ErrTimeout is returned when the command outlives Config.Timeout.
	ErrTimeout = errors.New("process: command timed out")
)
