package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Registry holds a loaded configuration tree and answers lookups on it.
//
// A Registry is an explicit object: pass it to whatever needs settings
// instead of reaching for process-wide state. Several independent
// registries can coexist, which keeps tests isolated.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Reload and Merge replace the
//     tree atomically; readers see either the old or the new tree.
type Registry struct {
	searchPaths []string
	envVar      string

	mu      sync.RWMutex
	path    string
	content Mapping
}

// Load locates, parses and merges a configuration file.
//
// Each path in searchPaths is tried in order and the first existing file
// is used. If envVar is non-empty and set in the process environment, its
// value names a top-level section of the same file; that section is merged
// over the document so environment-specific values take precedence.
//
// For example, with HSMCORE_ENV=testing:
//
//	archive:
//	  binary: lfs
//	testing:
//	  archive:
//	    binary: ./fake-lfs
//
// yields archive.binary == "./fake-lfs".
//
// Returns:
//   - *Registry: Loaded registry
//   - error: ErrNotFound, ErrMalformed or ErrUnknownEnvironment (all wrap ErrConfig)
func Load(searchPaths []string, envVar string) (*Registry, error) {
	r := &Registry{
		searchPaths: append([]string(nil), searchPaths...),
		envVar:      envVar,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// FromMapping builds a registry around an in-memory tree.
// Reload on such a registry fails with ErrNotFound.
func FromMapping(m Mapping) *Registry {
	return &Registry{content: m.Clone()}
}

// Reload re-reads the configuration from disk, replacing the current tree.
//
// Reloading is a full replacement, never additive: calling it twice on an
// unchanged file yields the same tree. On error the previous tree is kept.
func (r *Registry) Reload() error {
	path, err := findFile(r.searchPaths)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	content, err := applyEnvironment(doc, r.envVar)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	r.mu.Lock()
	r.path = path
	r.content = content
	r.mu.Unlock()
	return nil
}

// findFile returns the first path that names an existing regular file.
func findFile(searchPaths []string) (string, error) {
	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("checking %s: %w", p, err)
		}
		if info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %s)", ErrNotFound, strings.Join(searchPaths, ", "))
}

// applyEnvironment merges the section selected by envVar over doc.
func applyEnvironment(doc Mapping, envVar string) (Mapping, error) {
	if envVar == "" {
		return doc, nil
	}
	env, ok := os.LookupEnv(envVar)
	if !ok || env == "" {
		return doc, nil
	}

	section, ok := doc[env].(Mapping)
	if !ok {
		return nil, fmt.Errorf("%w: %s=%s", ErrUnknownEnvironment, envVar, env)
	}
	return Merge(doc, section), nil
}

// Path returns the file the current tree was loaded from.
// Empty for registries built with FromMapping.
func (r *Registry) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// Content returns a deep copy of the current tree.
func (r *Registry) Content() Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content.Clone()
}

// Get returns the plain value of a top-level key, or def if it is absent.
func (r *Registry) Get(key string, def any) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.content[key]
	if !ok {
		return def
	}
	return v.Interface()
}

// Has reports whether key is present at the top level. Nested keys are
// not consulted.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.content[key]
	return ok
}

// Query follows segments through nested sections and returns the plain
// value found there. It returns nil the moment a segment is missing.
//
// Example:
//
//	level := reg.Query("logging", "handlers", "stdout", "level")
func (r *Registry) Query(segments ...string) any {
	v, ok := r.Lookup(segments...)
	if !ok {
		return nil
	}
	return v.Interface()
}

// Lookup is Query without flattening: it returns a copy of the tree node.
func (r *Registry) Lookup(segments ...string) (Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.content.Lookup(segments...)
	if !ok {
		return nil, false
	}
	switch v := v.(type) {
	case Mapping:
		return v.Clone(), true
	case Scalar:
		return Scalar{V: copyLeaf(v.V)}, true
	}
	return v, true
}

// Merge merges override over the current tree in place.
// A later Reload discards the merged values.
func (r *Registry) Merge(override Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = Merge(r.content, override)
}

// Decode fills out from the section at segments. A missing section leaves
// out untouched.
func (r *Registry) Decode(out any, segments ...string) error {
	v, ok := r.Lookup(segments...)
	if !ok {
		return nil
	}
	section, ok := v.(Mapping)
	if !ok {
		return fmt.Errorf("%w: %s is not a section", ErrMalformed, strings.Join(segments, "."))
	}
	return section.Decode(out)
}
