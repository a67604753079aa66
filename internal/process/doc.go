// Package process runs external commands to completion.
//
// This package is used to drive command-line tools such as the Lustre
// "lfs" HSM client, where each invocation is short-lived and its output is
// parsed by the caller.
//
// Features:
//   - Separate capture of stdout and stderr (bounded in size)
//   - Per-command timeout on top of context cancellation
//   - Each command runs in its own process group; the whole group is
//     killed on timeout or cancellation so no grandchildren are left behind
//   - Non-zero exit reported as ErrExitStatus with the exit code preserved
//
// Example usage:
//
//	r := process.NewRunner(process.Config{Timeout: time.Minute})
//	res, err := r.Run(ctx, "lfs", "hsm_state", "/lustre/project/file.bam")
//	if errors.Is(err, process.ErrExitStatus) {
//	    log.Warn("lfs failed", "exit_code", res.ExitCode, "stderr", res.Stderr)
//	}
package process
