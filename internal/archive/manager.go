package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// defaultRetryDelay is the pause before the single registration retry.
const defaultRetryDelay = time.Second

// Logger defines the logging interface for the archive package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager checks and drives HSM state transitions for files.
//
// Thread Safety:
//   - A Manager holds no per-file state and is safe for concurrent use if
//     its Backend and Observers are. Concurrent operations on the same path
//     race in the HSM tool itself.
type Manager struct {
	backend    Backend
	logger     Logger
	retryDelay time.Duration
	observers  []Observer

	// sleep waits between registration attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRetryDelay sets the pause before the registration retry.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.retryDelay = d
	}
}

// WithObserver adds an observer notified after every state-changing operation.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// NewManager creates a manager issuing commands through backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:    backend,
		logger:     noopLogger{},
		retryDelay: defaultRetryDelay,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status queries the HSM tool for path and parses its report.
//
// A tool failure is treated as "no output" and reported as ErrUnparseable.
// A report for a different path fails with ErrPathMismatch.
func (m *Manager) Status(ctx context.Context, path string) (Status, error) {
	out, err := m.backend.State(ctx, path)
	if err != nil {
		if !errors.Is(err, ErrCommandFailed) {
			return Status{}, err
		}
		m.logger.Warn("hsm state query failed", "path", path, "error", err)
		out = ""
	}

	st, err := ParseStatus(out)
	if err != nil {
		return Status{}, fmt.Errorf("state of %s: %w", path, err)
	}
	if filepath.Clean(st.Path) != filepath.Clean(path) {
		return Status{}, fmt.Errorf("%w: asked for %s, tool reported %s", ErrPathMismatch, path, st.Path)
	}
	return st, nil
}

// States returns the HSM states currently reported for path.
// An unregistered file has no states.
func (m *Manager) States(ctx context.Context, path string) ([]State, error) {
	st, err := m.Status(ctx, path)
	if err != nil {
		return nil, err
	}
	return st.States, nil
}

// IsOfState reports whether path is in state. If known is non-nil it is
// used as the snapshot and the tool is not queried, so several predicates
// can be checked against one report.
func (m *Manager) IsOfState(ctx context.Context, state State, path string, known []State) (bool, error) {
	if known == nil {
		var err error
		if known, err = m.States(ctx, path); err != nil {
			return false, err
		}
	}
	return Has(known, state), nil
}

// IsRegistered reports whether path is registered for archiving.
func (m *Manager) IsRegistered(ctx context.Context, path string, known []State) (bool, error) {
	return m.IsOfState(ctx, StateExists, path, known)
}

// IsArchived reports whether path has a tape copy.
func (m *Manager) IsArchived(ctx context.Context, path string, known []State) (bool, error) {
	return m.IsOfState(ctx, StateArchived, path, known)
}

// IsReleased reports whether path's disk copy has been freed.
func (m *Manager) IsReleased(ctx context.Context, path string, known []State) (bool, error) {
	return m.IsOfState(ctx, StateReleased, path, known)
}

// IsDirty reports whether path changed since it was archived.
func (m *Manager) IsDirty(ctx context.Context, path string, known []State) (bool, error) {
	return m.IsOfState(ctx, StateDirty, path, known)
}

// Register registers path for archiving.
//
// A file that is already registered succeeds without issuing a command.
// Otherwise the archive command is issued and the registration re-checked;
// if it did not take, Register waits the retry delay and tries exactly once
// more before failing with ErrRegistrationFailed.
func (m *Manager) Register(ctx context.Context, path string) error {
	return m.register(ctx, path, false)
}

// RegisterStrict is Register without the retry.
func (m *Manager) RegisterStrict(ctx context.Context, path string) error {
	return m.register(ctx, path, true)
}

func (m *Manager) register(ctx context.Context, path string, strict bool) error {
	ev := m.begin(OpRegister, path)

	before, err := m.States(ctx, path)
	if err != nil {
		return m.finish(ctx, ev, err)
	}
	ev.Before = before
	if Has(before, StateExists) {
		ev.Success = true
		return m.finish(ctx, ev, nil)
	}

	ev.Changed = true
	for {
		ev.Attempts++
		ok, err := m.tryRegister(ctx, path)
		if err != nil {
			return m.finish(ctx, ev, err)
		}
		if ok {
			ev.Success = true
			m.logger.Info("registered for archiving", "path", path, "attempts", ev.Attempts)
			return m.finish(ctx, ev, nil)
		}
		if strict {
			return m.finish(ctx, ev, fmt.Errorf("%w: %s after %d attempt(s)", ErrRegistrationFailed, path, ev.Attempts))
		}

		m.logger.Warn("registration did not take, retrying", "path", path, "delay", m.retryDelay)
		if err := m.sleep(ctx, m.retryDelay); err != nil {
			return m.finish(ctx, ev, err)
		}
		strict = true
	}
}

// tryRegister issues one archive command and checks the post-condition.
// It returns an error only for failures that must abort the operation.
func (m *Manager) tryRegister(ctx context.Context, path string) (bool, error) {
	if _, err := m.backend.Archive(ctx, path); err != nil {
		if errors.Is(err, ErrCommandFailed) {
			return false, nil
		}
		return false, err
	}

	ok, err := m.IsRegistered(ctx, path, nil)
	if err != nil {
		if errors.Is(err, ErrArchiving) {
			m.logger.Warn("could not confirm registration", "path", path, "error", err)
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Release frees the disk copy of an archived file.
//
// It fails with a *PreconditionError if the file is dirty or not archived.
// An already released file succeeds without issuing a command. Otherwise
// the release command is issued and the result reports whether the file is
// now released.
func (m *Manager) Release(ctx context.Context, path string) (bool, error) {
	ev := m.begin(OpRelease, path)

	before, err := m.States(ctx, path)
	if err != nil {
		return false, m.finish(ctx, ev, err)
	}
	ev.Before = before

	switch {
	case Has(before, StateDirty):
		return false, m.finish(ctx, ev, &PreconditionError{Op: OpRelease, Path: path, State: StateDirty, Present: true})
	case !Has(before, StateArchived):
		return false, m.finish(ctx, ev, &PreconditionError{Op: OpRelease, Path: path, State: StateArchived})
	case Has(before, StateReleased):
		ev.Success = true
		return true, m.finish(ctx, ev, nil)
	}

	ev.Changed = true
	ev.Attempts = 1
	if _, err := m.backend.Release(ctx, path); err != nil && !errors.Is(err, ErrCommandFailed) {
		return false, m.finish(ctx, ev, err)
	}

	released, err := m.IsReleased(ctx, path, nil)
	if err != nil {
		return false, m.finish(ctx, ev, err)
	}
	ev.Success = released
	if released {
		m.logger.Info("released from disk", "path", path)
	} else {
		m.logger.Warn("release did not take", "path", path)
	}
	return released, m.finish(ctx, ev, nil)
}

// Recall restores the disk copy of a released file from tape.
//
// It fails with a *PreconditionError if the file is dirty, or if it is not
// both archived and released. Otherwise the restore command is issued and
// the result reports whether the tool accepted it. Restores complete
// asynchronously, so the released flag may still be set on return.
func (m *Manager) Recall(ctx context.Context, path string) (bool, error) {
	ev := m.begin(OpRecall, path)

	before, err := m.States(ctx, path)
	if err != nil {
		return false, m.finish(ctx, ev, err)
	}
	ev.Before = before

	switch {
	case Has(before, StateDirty):
		return false, m.finish(ctx, ev, &PreconditionError{Op: OpRecall, Path: path, State: StateDirty, Present: true})
	case !Has(before, StateArchived):
		return false, m.finish(ctx, ev, &PreconditionError{Op: OpRecall, Path: path, State: StateArchived})
	case !Has(before, StateReleased):
		return false, m.finish(ctx, ev, &PreconditionError{Op: OpRecall, Path: path, State: StateReleased})
	}

	ev.Changed = true
	ev.Attempts = 1
	if _, err := m.backend.Restore(ctx, path); err != nil {
		if errors.Is(err, ErrCommandFailed) {
			m.logger.Warn("restore command failed", "path", path, "error", err)
			return false, m.finish(ctx, ev, nil)
		}
		return false, m.finish(ctx, ev, err)
	}

	ev.Success = true
	m.logger.Info("recall requested", "path", path)
	return true, m.finish(ctx, ev, nil)
}

// begin starts an event record for op on path.
func (m *Manager) begin(op Op, path string) Event {
	return Event{Op: op, Path: path, Time: time.Now()}
}

// finish completes ev, notifies observers and returns err unchanged.
func (m *Manager) finish(ctx context.Context, ev Event, err error) error {
	ev.Duration = time.Since(ev.Time)
	if err != nil {
		ev.Success = false
		ev.Error = err.Error()
	}
	for _, o := range m.observers {
		if oerr := o.ObserveArchiveEvent(ctx, ev); oerr != nil {
			m.logger.Warn("archive observer failed", "op", ev.Op, "path", ev.Path, "error", oerr)
		}
	}
	return err
}
