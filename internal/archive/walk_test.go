package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// makeTree creates files (relative paths) under a temp dir and returns it.
func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return root
}

func TestArchiveDirectory_OneFailure(t *testing.T) {
	root := makeTree(t, "good.txt", "nested/bad.txt")
	good := filepath.Join(root, "good.txt")
	bad := filepath.Join(root, "nested", "bad.txt")

	fb := newFakeBackend()
	fb.archiveIgnored[bad] = true
	m, _ := newTestManager(fb)

	rep := m.ArchiveDirectory(context.Background(), root)

	if rep.OK() {
		t.Error("OK() = true, want false with one failed file")
	}
	if rep.Attempted != 2 {
		t.Errorf("Attempted = %d, want 2", rep.Attempted)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Path != bad {
		t.Fatalf("Failures = %+v, want only %s", rep.Failures, bad)
	}
	if fb.count(verbArchive, good) != 1 {
		t.Errorf("hsm_archive %s issued %d times, want 1", good, fb.count(verbArchive, good))
	}
	if fb.count(verbArchive, bad) != 2 {
		t.Errorf("hsm_archive %s issued %d times, want 2", bad, fb.count(verbArchive, bad))
	}
}

func TestArchiveDirectory_AllRegistered(t *testing.T) {
	root := makeTree(t, "a", "b/c", "b/d/e")
	fb := newFakeBackend()
	m, _ := newTestManager(fb)

	rep := m.ArchiveDirectory(context.Background(), root)
	if !rep.OK() {
		t.Errorf("OK() = false, failures %+v", rep.Failures)
	}
	if rep.Attempted != 3 {
		t.Errorf("Attempted = %d, want 3", rep.Attempted)
	}
	for _, f := range []string{"a", "b/c", "b/d/e"} {
		p := filepath.Join(root, filepath.FromSlash(f))
		if !Has(fb.states[p], StateExists) {
			t.Errorf("%s not registered", p)
		}
	}
}

func TestArchiveDirectory_SkipsSymlinks(t *testing.T) {
	root := makeTree(t, "real.txt")
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(filepath.Join(root, "real.txt"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	fb := newFakeBackend()
	m, _ := newTestManager(fb)

	rep := m.ArchiveDirectory(context.Background(), root)
	if rep.Attempted != 1 {
		t.Errorf("Attempted = %d, want 1", rep.Attempted)
	}
	if n := fb.count(verbState, link); n != 0 {
		t.Errorf("hsm_state issued %d times for symlink, want 0", n)
	}
}

func TestArchiveDirectory_MissingRoot(t *testing.T) {
	fb := newFakeBackend()
	m, _ := newTestManager(fb)

	rep := m.ArchiveDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if rep.OK() {
		t.Error("OK() = true, want false for a missing root")
	}
	if rep.Attempted != 0 {
		t.Errorf("Attempted = %d, want 0 when nothing could be visited", rep.Attempted)
	}
	if len(rep.WalkErrors) != 1 || len(rep.Failures) != 0 {
		t.Errorf("WalkErrors = %+v, Failures = %+v, want one walk error", rep.WalkErrors, rep.Failures)
	}
}

func TestArchiveDirectory_UnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs a directory this user cannot read")
	}
	root := makeTree(t, "ok.txt", "locked/hidden.txt")
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) }) //nolint:errcheck // Test cleanup

	fb := newFakeBackend()
	m, _ := newTestManager(fb)

	rep := m.ArchiveDirectory(context.Background(), root)
	if rep.Attempted != 1 {
		t.Errorf("Attempted = %d, want 1 (only ok.txt)", rep.Attempted)
	}
	if len(rep.WalkErrors) != 1 || rep.WalkErrors[0].Path != locked {
		t.Errorf("WalkErrors = %+v, want %s", rep.WalkErrors, locked)
	}
	var walkErr *WalkError
	if len(rep.WalkErrors) == 1 && !errors.As(rep.WalkErrors[0].Err, &walkErr) {
		t.Errorf("walk error %v is not a *WalkError", rep.WalkErrors[0].Err)
	}
	if rep.OK() {
		t.Error("OK() = true, want false with an unreadable directory")
	}
}

func TestWalkRegister_StopsEarly(t *testing.T) {
	root := makeTree(t, "a", "b", "c")
	fb := newFakeBackend()
	m, _ := newTestManager(fb)

	seen := 0
	for _, err := range m.WalkRegister(context.Background(), root) {
		if err != nil {
			t.Fatalf("WalkRegister() error = %v", err)
		}
		seen++
		if seen == 1 {
			break
		}
	}

	total := 0
	for _, f := range []string{"a", "b", "c"} {
		total += fb.count(verbArchive, filepath.Join(root, f))
	}
	if total != 1 {
		t.Errorf("hsm_archive issued %d times, want 1 after break", total)
	}
}

func TestWalkRegister_Cancelled(t *testing.T) {
	root := makeTree(t, "a", "b")
	fb := newFakeBackend()
	m, _ := newTestManager(fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := m.ArchiveDirectory(ctx, root)
	if rep.OK() {
		t.Error("OK() = true, want false for a cancelled walk")
	}
	if len(fb.calls) != 0 {
		t.Errorf("issued %v, want no commands after cancellation", fb.calls)
	}
}
