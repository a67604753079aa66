package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Registry is the single point of control for log verbosity, output
// destinations and formatting.
//
// Every Logger obtained from a registry is a thin view over it: loggers do
// not copy handlers or levels, they read the registry's current state on
// every record. Handlers added later therefore reach loggers issued
// earlier, and Reset silences all of them at once.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	level slog.LevelVar

	mu        sync.RWMutex
	handlers  []*Handler
	loggers   map[string]*Logger
	formatter Formatter
	stdout    io.Writer
}

// Option configures a Registry.
type Option func(*Registry)

// WithStdout sets the writer used for the stdout handler built by
// ConfigureFromConfig. Default: os.Stdout
func WithStdout(w io.Writer) Option {
	return func(r *Registry) {
		r.stdout = w
	}
}

// WithFormatter sets the initial formatter. Default: a DefaultFormatter using DefaultDatefmt
func WithFormatter(f Formatter) Option {
	return func(r *Registry) {
		r.formatter = f
	}
}

// NewRegistry creates an empty registry at info level with no handlers.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		loggers:   make(map[string]*Logger),
		formatter: defaultFormatter,
		stdout:    os.Stdout,
	}
	r.level.Set(slog.LevelInfo)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default creates a registry with a single stdout handler at info level.
//
// It should only be used during early startup before configuration is
// available; reconfigure it with Close and ConfigureFromConfig afterwards.
func Default() *Registry {
	r := NewRegistry()
	r.AddHandler(NewStreamHandler("stdout", os.Stdout), slog.LevelInfo)
	return r
}

// Logger returns the logger bound to name, creating it on first use.
// Repeated calls with the same name return the same *Logger.
func (r *Registry) Logger(name string) *Logger {
	r.mu.RLock()
	l, ok := r.loggers[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[name]; ok {
		return l
	}
	l = &Logger{
		Logger: slog.New(&viewHandler{reg: r, name: name}),
		name:   name,
		reg:    r,
	}
	r.loggers[name] = l
	return l
}

// Loggers returns the names of every logger issued so far.
func (r *Registry) Loggers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	return names
}

// AddHandler registers h at the given level with the registry's current
// formatter. It reaches every logger, including those issued earlier.
func (r *Registry) AddHandler(h *Handler, level slog.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.SetLevel(level)
	h.SetFormatter(r.formatter)
	r.handlers = append(r.handlers, h)
}

// Handlers returns a snapshot of the registered handlers.
func (r *Registry) Handlers() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Handler(nil), r.handlers...)
}

// Level returns the registry-wide level shared by every logger.
func (r *Registry) Level() slog.Level {
	return r.level.Level()
}

// SetLevel sets the registry level and every handler's level in lock-step.
func (r *Registry) SetLevel(level slog.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level.Set(level)
	for _, h := range r.handlers {
		h.SetLevel(level)
	}
}

// Formatter returns the formatter applied to newly added handlers.
func (r *Registry) Formatter() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatter
}

// SetFormatter swaps the formatter on every registered handler and on
// handlers added later.
func (r *Registry) SetFormatter(f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatter = f
	for _, h := range r.handlers {
		h.SetFormatter(f)
	}
}

// Reset detaches every handler. Loggers stay registered by name but write
// nothing until handlers are added again. Detached handlers stay open and
// can be added back; use Close to release them.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}

// Close detaches every handler and closes it. File handlers release their
// files; stream handlers leave their writer open.
func (r *Registry) Close() error {
	r.mu.Lock()
	handlers := r.handlers
	r.handlers = nil
	r.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
