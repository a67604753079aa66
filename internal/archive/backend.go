package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/hsm-core/internal/process"
)

// HSM tool verbs, issued as "<binary> <verb> <path>".
const (
	verbState   = "hsm_state"
	verbArchive = "hsm_archive"
	verbRelease = "hsm_release"
	verbRestore = "hsm_restore"
)

// Backend issues HSM commands for a single path and returns the tool's
// stdout.
//
// Implementations return an error wrapping ErrCommandFailed when the tool
// ran but failed, and any other error (spawn failure, timeout,
// cancellation) to abort the operation.
type Backend interface {
	State(ctx context.Context, path string) (string, error)
	Archive(ctx context.Context, path string) (string, error)
	Release(ctx context.Context, path string) (string, error)
	Restore(ctx context.Context, path string) (string, error)
}

// CommandRunner runs a command to completion. *process.Runner implements it.
type CommandRunner interface {
	Run(ctx context.Context, binary string, args ...string) (process.Result, error)
}

// LFSBackend implements Backend on top of the "lfs" command-line tool.
type LFSBackend struct {
	binary string
	runner CommandRunner
	logger Logger
}

// NewLFSBackend creates a backend invoking binary through runner.
// Bound tool invocations with a runner timeout (process.Config.Timeout).
func NewLFSBackend(binary string, runner CommandRunner) *LFSBackend {
	return &LFSBackend{
		binary: binary,
		runner: runner,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for failed commands.
func (b *LFSBackend) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// State runs "<binary> hsm_state <path>".
func (b *LFSBackend) State(ctx context.Context, path string) (string, error) {
	return b.run(ctx, verbState, path)
}

// Archive runs "<binary> hsm_archive <path>".
func (b *LFSBackend) Archive(ctx context.Context, path string) (string, error) {
	return b.run(ctx, verbArchive, path)
}

// Release runs "<binary> hsm_release <path>".
func (b *LFSBackend) Release(ctx context.Context, path string) (string, error) {
	return b.run(ctx, verbRelease, path)
}

// Restore runs "<binary> hsm_restore <path>".
func (b *LFSBackend) Restore(ctx context.Context, path string) (string, error) {
	return b.run(ctx, verbRestore, path)
}

func (b *LFSBackend) run(ctx context.Context, verb, path string) (string, error) {
	res, err := b.runner.Run(ctx, b.binary, verb, path)
	if errors.Is(err, process.ErrExitStatus) {
		b.logger.Warn("hsm command failed",
			"binary", b.binary,
			"verb", verb,
			"path", path,
			"exit_code", res.ExitCode,
			"stdout", res.Stdout,
			"stderr", res.Stderr,
		)
		return "", fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, verb, path, err)
	}
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
