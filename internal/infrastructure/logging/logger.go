package logging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Logger wraps slog.Logger with a name and a live link to its registry.
//
// It provides structured logging whose destinations and level are owned
// by the registry, so configuration changes apply without reissuing loggers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	name string
	reg  *Registry
}

// Name returns the name the logger was issued under.
func (l *Logger) Name() string {
	return l.name
}

// Handlers returns the registry's current handler set, which is exactly
// the set this logger writes to.
func (l *Logger) Handlers() []*Handler {
	return l.reg.Handlers()
}

// Level returns the registry's current level.
func (l *Logger) Level() slog.Level {
	return l.reg.Level()
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	walkLog := logger.With("root", "/lustre/project")
//	walkLog.Info("registering") // Includes root=/lustre/project
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		name:   l.name,
		reg:    l.reg,
	}
}

// viewHandler is the slog.Handler behind every Logger. It holds no sinks of
// its own and fans records out to the registry's handlers at call time.
type viewHandler struct {
	reg    *Registry
	name   string
	attrs  []slog.Attr
	groups []string
}

func (v *viewHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= v.reg.Level()
}

func (v *viewHandler) Handle(_ context.Context, r slog.Record) error {
	handlers := v.reg.Handlers()
	if len(handlers) == 0 {
		return nil
	}

	if len(v.attrs) > 0 || len(v.groups) > 0 {
		nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		nr.AddAttrs(v.attrs...)
		r.Attrs(func(a slog.Attr) bool {
			nr.AddAttrs(v.qualify(a))
			return true
		})
		r = nr
	}

	var errs []error
	for _, h := range handlers {
		if err := h.emit(v.name, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *viewHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nv := v.clone()
	for _, a := range attrs {
		nv.attrs = append(nv.attrs, v.qualify(a))
	}
	return nv
}

func (v *viewHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return v
	}
	nv := v.clone()
	nv.groups = append(nv.groups, name)
	return nv
}

func (v *viewHandler) clone() *viewHandler {
	return &viewHandler{
		reg:    v.reg,
		name:   v.name,
		attrs:  append([]slog.Attr(nil), v.attrs...),
		groups: append([]string(nil), v.groups...),
	}
}

// qualify prefixes an attribute key with the open groups.
func (v *viewHandler) qualify(a slog.Attr) slog.Attr {
	if len(v.groups) == 0 {
		return a
	}
	a.Key = strings.Join(v.groups, ".") + "." + a.Key
	return a
}
