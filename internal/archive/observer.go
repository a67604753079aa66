package archive

import (
	"context"
	"time"
)

// Op names a state-changing archive operation.
type Op string

const (
	OpRegister Op = "register"
	OpRelease  Op = "release"
	OpRecall   Op = "recall"
)

// Event describes the outcome of one register, release or recall call.
type Event struct {
	Op   Op
	Path string

	// Before is the state snapshot the operation's checks were made against.
	Before []State

	// Success is true when the operation's post-condition holds.
	Success bool

	// Changed is false when the file was already in the target state and
	// no command was issued.
	Changed bool

	// Attempts counts tool invocations of the state-changing verb.
	Attempts int

	Duration time.Duration
	Error    string
	Time     time.Time
}

// Observer receives archive events. Observers run synchronously after each
// operation; their errors are logged and never change the operation's result.
type Observer interface {
	ObserveArchiveEvent(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event) error

// ObserveArchiveEvent calls f.
func (f ObserverFunc) ObserveArchiveEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
