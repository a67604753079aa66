package archive

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"path/filepath"
)

// Result is the outcome of registering one file during a directory walk.
type Result struct {
	Path string
	Err  error
}

// Report aggregates a directory walk.
type Report struct {
	// Attempted counts the files a registration was attempted for.
	Attempted int

	// Failures lists every file whose registration failed, in walk order.
	Failures []Result

	// WalkErrors lists entries the walk could not visit. They are not
	// counted in Attempted.
	WalkErrors []Result
}

// OK reports whether every file in the walk was registered.
func (r Report) OK() bool {
	return len(r.Failures) == 0 && len(r.WalkErrors) == 0
}

// WalkRegister walks root and registers every regular file below it,
// yielding each file's path and registration error as it goes.
//
// A failure never stops the walk. Directories that cannot be read are
// yielded with a *WalkError and skipped. Symbolic links are not followed.
// Cancelling ctx ends the walk after the current file.
func (m *Manager) WalkRegister(ctx context.Context, root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		//nolint:errcheck // walk errors are yielded per entry; SkipAll only stops early
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(path, &WalkError{Path: path, Err: ctxErr})
				return fs.SkipAll
			}
			if err != nil {
				if !yield(path, &WalkError{Path: path, Err: err}) {
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(path, m.Register(ctx, path)) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// ArchiveDirectory registers every regular file below root and reports
// which ones failed. Every file is attempted even after a failure.
func (m *Manager) ArchiveDirectory(ctx context.Context, root string) Report {
	var rep Report
	for path, err := range m.WalkRegister(ctx, root) {
		var walkErr *WalkError
		if errors.As(err, &walkErr) {
			m.logger.Warn("walk error", "path", path, "error", err)
			rep.WalkErrors = append(rep.WalkErrors, Result{Path: path, Err: err})
			continue
		}
		rep.Attempted++
		if err != nil {
			m.logger.Warn("registration failed", "path", path, "error", err)
			rep.Failures = append(rep.Failures, Result{Path: path, Err: err})
		}
	}
	m.logger.Info("directory walk complete",
		"root", root,
		"attempted", rep.Attempted,
		"failed", len(rep.Failures),
		"walk_errors", len(rep.WalkErrors),
	)
	return rep
}
