package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeBackend is an in-memory HSM tool. Each path carries a state list;
// the state-changing verbs move it the way lfs would unless told not to.
type fakeBackend struct {
	mu sync.Mutex

	states map[string][]State

	// calls records every verb issued as "verb path".
	calls []string

	// archiveFailures makes the first N archive calls for a path fail
	// with a command error.
	archiveFailures map[string]int

	// archiveIgnored makes archive calls for a path succeed without
	// registering the file.
	archiveIgnored map[string]bool

	// releaseIgnored makes release calls succeed without releasing.
	releaseIgnored map[string]bool

	// restoreFails makes restore calls fail with a command error.
	restoreFails map[string]bool

	// reportAs makes hsm_state report a different path.
	reportAs map[string]string

	// raw overrides hsm_state output for a path.
	raw map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		states:          make(map[string][]State),
		archiveFailures: make(map[string]int),
		archiveIgnored:  make(map[string]bool),
		releaseIgnored:  make(map[string]bool),
		restoreFails:    make(map[string]bool),
		reportAs:        make(map[string]string),
		raw:             make(map[string]string),
	}
}

func (f *fakeBackend) set(path string, states ...State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[path] = states
}

func (f *fakeBackend) count(verb, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == verb+" "+path {
			n++
		}
	}
	return n
}

func (f *fakeBackend) record(verb, path string) {
	f.calls = append(f.calls, verb+" "+path)
}

func (f *fakeBackend) State(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(verbState, path)

	if out, ok := f.raw[path]; ok {
		return out, nil
	}
	reported := path
	if p, ok := f.reportAs[path]; ok {
		reported = p
	}
	states := f.states[path]
	if len(states) == 0 {
		return reported + ": (0x00000000)\n", nil
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return fmt.Sprintf("%s: (0x%08x) %s, archive_id:1\n", reported, len(states), strings.Join(names, " ")), nil
}

func (f *fakeBackend) Archive(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(verbArchive, path)

	if f.archiveFailures[path] > 0 {
		f.archiveFailures[path]--
		return "", fmt.Errorf("%w: exit status 1", ErrCommandFailed)
	}
	if f.archiveIgnored[path] {
		return "", nil
	}
	if !Has(f.states[path], StateExists) {
		f.states[path] = append(f.states[path], StateExists)
	}
	return "", nil
}

func (f *fakeBackend) Release(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(verbRelease, path)

	if !f.releaseIgnored[path] {
		f.states[path] = append(f.states[path], StateReleased)
	}
	return "", nil
}

func (f *fakeBackend) Restore(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(verbRestore, path)

	if f.restoreFails[path] {
		return "", fmt.Errorf("%w: exit status 2", ErrCommandFailed)
	}
	return "", nil
}

// recordingObserver collects every event it sees.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) ObserveArchiveEvent(_ context.Context, ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return nil
}

// newTestManager returns a manager over b that never actually sleeps,
// and a pointer to the number of sleeps requested.
func newTestManager(b Backend, opts ...Option) (*Manager, *int) {
	m := NewManager(b, opts...)
	sleeps := 0
	m.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return m, &sleeps
}
