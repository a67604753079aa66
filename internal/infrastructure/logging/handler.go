package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Log file permission constants.
const (
	// dirPermissions is the permission mode for created log directories.
	dirPermissions = 0750

	// filePermissions is the permission mode for created log files.
	filePermissions = 0640
)

// Handler is an output sink for log records: a console stream, a flat file
// or a time-rotated file.
//
// Each handler carries its own level and formatter. The registry sets both
// when the handler is added and keeps them in step afterwards.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Handler struct {
	name  string
	level slog.LevelVar

	mu        sync.Mutex
	w         io.Writer
	closer    io.Closer
	formatter Formatter
	closed    bool
}

// NewStreamHandler creates a handler writing to w. The handler never closes w.
func NewStreamHandler(name string, w io.Writer) *Handler {
	return &Handler{
		name:      name,
		w:         w,
		formatter: defaultFormatter,
	}
}

// NewFileHandler creates a handler appending to the file at path.
// Missing parent directories are created. Errors opening the file are
// returned unchanged.
func NewFileHandler(path string) (*Handler, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions) //nolint:gosec // Path comes from operator configuration
	if err != nil {
		return nil, err
	}
	return &Handler{
		name:      "file",
		w:         f,
		closer:    f,
		formatter: defaultFormatter,
	}, nil
}

// NewTimedRotatingFileHandler creates a handler writing to path and rotating
// the file every interval units of when (S, M, H or D). backupCount limits
// how many rotated files are kept; 0 keeps all of them.
func NewTimedRotatingFileHandler(path, when string, interval, backupCount int) (*Handler, error) {
	rf, err := openRotatingFile(path, when, interval, backupCount)
	if err != nil {
		return nil, err
	}
	return &Handler{
		name:      "timed_rotating_file",
		w:         rf,
		closer:    rf,
		formatter: defaultFormatter,
	}, nil
}

// Name returns the handler's label.
func (h *Handler) Name() string {
	return h.name
}

// Level returns the minimum level this handler writes.
func (h *Handler) Level() slog.Level {
	return h.level.Level()
}

// SetLevel changes the minimum level this handler writes.
func (h *Handler) SetLevel(level slog.Level) {
	h.level.Set(level)
}

// Formatter returns the handler's current formatter.
func (h *Handler) Formatter() Formatter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.formatter
}

// SetFormatter swaps the handler's formatter.
func (h *Handler) SetFormatter(f Formatter) {
	h.mu.Lock()
	h.formatter = f
	h.mu.Unlock()
}

// emit formats and writes one record if it meets the handler's level.
func (h *Handler) emit(name string, r slog.Record) error {
	if r.Level < h.level.Level() {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandlerClosed
	}
	if _, err := h.w.Write(h.formatter.Format(name, r)); err != nil {
		return fmt.Errorf("writing to %s handler: %w", h.name, err)
	}
	return nil
}

// Close releases the handler's destination. Stream handlers leave their
// writer open. Closing twice is a no-op.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.closer != nil {
		return h.closer.Close()
	}
	return nil
}
