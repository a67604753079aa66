package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrNoFile is returned by Watch on a registry that was not loaded from disk.
var ErrNoFile = fmt.Errorf("%w: registry has no backing file", ErrConfig)

// Watch reloads the registry whenever its file is written, created or
// renamed into place, and calls onReload with the result of each reload.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file atomically are still noticed.
//
// Watching stops when ctx is cancelled or stop is called; stop blocks until
// the watcher goroutine has exited.
func (r *Registry) Watch(ctx context.Context, onReload func(err error)) (stop func(), err error) {
	path := r.Path()
	if path == "" {
		return nil, ErrNoFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	wctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer w.Close() //nolint:errcheck // Nothing useful to do with a close error here

		for {
			select {
			case <-wctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				err := r.Reload()
				if onReload != nil {
					onReload(err)
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				if onReload != nil && !errors.Is(werr, fsnotify.ErrEventOverflow) {
					onReload(fmt.Errorf("watching config: %w", werr))
				}
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}
