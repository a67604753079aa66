// Package archive drives the hierarchical storage management (HSM) state of
// files on a Lustre filesystem.
//
// A file moves through these states, as reported by "lfs hsm_state":
//
//	unregistered -> exists -> archived -> released
//
// "exists" means the file is registered for archiving, "archived" that a
// tape copy has been made, and "released" that the disk copy has been freed
// so only the tape copy remains. "dirty" may be set on top of any state and
// means the disk copy changed since it was archived; it blocks release and
// recall.
//
// The Manager enforces those preconditions and talks to the tool through a
// Backend. LFSBackend shells out to the real binary; tests substitute an
// in-memory fake. State is never cached between calls: every operation
// re-queries the tool, and within one operation a single snapshot is reused
// for all precondition checks.
//
// Usage:
//
//	backend := archive.NewLFSBackend("lfs", process.NewRunner(process.Config{Timeout: time.Minute}))
//	mgr := archive.NewManager(backend, archive.WithLogger(reg.Logger("archive")))
//
//	if err := mgr.Register(ctx, "/lustre/run42/sample.bam"); err != nil {
//	    return err
//	}
//	report := mgr.ArchiveDirectory(ctx, "/lustre/run42")
//	for _, f := range report.Failures {
//	    log.Warn("not registered", "path", f.Path, "error", f.Err)
//	}
package archive
