package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// maxOutputSize caps how much of each stream is kept per command.
const maxOutputSize = 1 << 20 // 1MB

// defaultWaitDelay is how long Run waits for output pipes to drain after the
// process group has been killed.
const defaultWaitDelay = 5 * time.Second

// Config holds settings shared by every command a Runner starts.
type Config struct {
	// Timeout bounds each command. 0 means no bound beyond the caller's context.
	Timeout time.Duration

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for commands.
	// If empty, inherits from parent process.
	WorkDir string
}

// Result is the outcome of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Runner starts commands and waits for them to finish.
// A Runner is safe for concurrent use; it holds no per-command state.
type Runner struct {
	config Config
	logger Logger
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	return &Runner{
		config: cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Run executes binary with args and blocks until it exits, the configured
// timeout elapses or ctx is cancelled.
//
// Returns:
//   - Result: captured output and exit code (populated even on ErrExitStatus)
//   - error: nil on exit status 0; ErrExitStatus, ErrTimeout, ctx.Err(),
//     or the spawn error (e.g. exec.ErrNotFound) otherwise
func (r *Runner) Run(ctx context.Context, binary string, args ...string) (Result, error) {
	runCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, binary, args...) //nolint:gosec // Binary and args come from operator configuration

	// Create a new process group so the whole tree can be killed.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process)
	}
	cmd.WaitDelay = defaultWaitDelay

	if r.config.Env != nil {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}

	stdout := &cappedBuffer{limit: maxOutputSize}
	stderr := &cappedBuffer{limit: maxOutputSize}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running command", "binary", binary, "args", args)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("running %s: %w", binary, ctx.Err())
	case runCtx.Err() != nil:
		r.logger.Warn("command timed out", "binary", binary, "args", args, "timeout", r.config.Timeout)
		return res, fmt.Errorf("%w: %s after %v", ErrTimeout, binary, r.config.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, fmt.Errorf("%w: %s exited with %d: %s",
			ErrExitStatus, binary, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, err
}

// killGroup sends SIGKILL to the process group led by p.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	// Negative PID signals the process group created via Setpgid.
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// cappedBuffer keeps the first limit bytes written to it and discards the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
