package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// rotationUnit describes one supported rotation unit.
type rotationUnit struct {
	seconds int
	suffix  string // Go layout appended to rotated file names
}

var rotationUnits = map[string]rotationUnit{
	"S": {seconds: 1, suffix: "2006-01-02_15-04-05"},
	"M": {seconds: 60, suffix: "2006-01-02_15-04"},
	"H": {seconds: 3600, suffix: "2006-01-02_15"},
	"D": {seconds: 86400, suffix: "2006-01-02"},
}

// RotationPeriod converts a rotation unit and interval into a duration.
// The unit is case-insensitive, so "h" and "H" both mean hours and an
// interval of 2 in hours becomes 7200 seconds.
func RotationPeriod(when string, interval int) (time.Duration, error) {
	unit, ok := rotationUnits[strings.ToUpper(when)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRotation, when)
	}
	if interval < 1 {
		interval = 1
	}
	return time.Duration(interval*unit.seconds) * time.Second, nil
}

// rotatingFile is an io.WriteCloser that rolls its file over on a fixed period.
type rotatingFile struct {
	path    string
	period  time.Duration
	suffix  string
	backups int
	now     func() time.Time

	mu         sync.Mutex
	f          *os.File
	rolloverAt time.Time
}

func openRotatingFile(path, when string, interval, backups int) (*rotatingFile, error) {
	period, err := RotationPeriod(when, interval)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, err
	}

	rf := &rotatingFile{
		path:    path,
		period:  period,
		suffix:  rotationUnits[strings.ToUpper(when)].suffix,
		backups: backups,
		now:     time.Now,
	}

	start := rf.now()
	if info, err := os.Stat(path); err == nil {
		start = info.ModTime()
	}
	rf.rolloverAt = start.Add(period)

	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions) //nolint:gosec // Path comes from operator configuration
	if err != nil {
		return err
	}
	rf.f = f
	return nil
}

// Write implements io.Writer, rotating first if the period has elapsed.
func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.f == nil {
		return 0, ErrHandlerClosed
	}
	if now := rf.now(); !now.Before(rf.rolloverAt) {
		if err := rf.rotate(now); err != nil {
			return 0, err
		}
	}
	return rf.f.Write(p)
}

// rotate renames the current file with a timestamp suffix for the period
// it covers, reopens a fresh file and prunes old backups.
func (rf *rotatingFile) rotate(now time.Time) error {
	if err := rf.f.Close(); err != nil {
		return fmt.Errorf("closing log file for rotation: %w", err)
	}
	rf.f = nil

	covered := rf.rolloverAt.Add(-rf.period)
	rotated := rf.path + "." + covered.Format(rf.suffix)
	if err := os.Rename(rf.path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotating log file: %w", err)
	}

	if err := rf.open(); err != nil {
		return err
	}

	next := rf.rolloverAt
	for !now.Before(next) {
		next = next.Add(rf.period)
	}
	rf.rolloverAt = next

	return rf.prune()
}

// prune removes the oldest rotated files beyond the backup limit.
func (rf *rotatingFile) prune() error {
	if rf.backups <= 0 {
		return nil
	}

	matches, err := filepath.Glob(rf.path + ".*")
	if err != nil {
		return err
	}

	var rotated []string
	prefix := rf.path + "."
	for _, m := range matches {
		if _, err := time.Parse(rf.suffix, strings.TrimPrefix(m, prefix)); err == nil {
			rotated = append(rotated, m)
		}
	}
	if len(rotated) <= rf.backups {
		return nil
	}

	// Suffix layouts sort lexically in time order.
	sort.Strings(rotated)
	for _, old := range rotated[:len(rotated)-rf.backups] {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing old log file: %w", err)
		}
	}
	return nil
}

// Close closes the underlying file.
func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	return err
}
