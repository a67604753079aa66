// Package journal records archive events in the archive_events table so
// past register, release and recall calls can be reviewed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nerrad567/hsm-core/internal/archive"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one journalled archive operation.
type Entry struct {
	ID       string          `json:"id"`
	Op       archive.Op      `json:"op"`
	Path     string          `json:"path"`
	States   []archive.State `json:"states,omitempty"`
	Success  bool            `json:"success"`
	Changed  bool            `json:"changed"`
	Attempts int             `json:"attempts"`
	Duration time.Duration   `json:"duration"`
	Error    string          `json:"error,omitempty"`
	Time     time.Time       `json:"time"`
}

// Filter controls which entries List returns.
type Filter struct {
	Op         archive.Op // optional: register, release or recall
	Path       string     // optional: exact path
	PathPrefix string     // optional: a directory and every path below it
	FailedOnly bool       // only entries whose operation failed
	Limit      int        // default 50, max 500
	Offset     int        // pagination offset
}

// ListResult contains a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Journal stores entries in SQLite. It implements archive.Observer.
type Journal struct {
	db *sql.DB
}

// New creates a journal over db. The archive_events migration must have
// been applied.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// ObserveArchiveEvent records ev.
func (j *Journal) ObserveArchiveEvent(ctx context.Context, ev archive.Event) error {
	return j.Record(ctx, &Entry{
		Op:       ev.Op,
		Path:     ev.Path,
		States:   ev.Before,
		Success:  ev.Success,
		Changed:  ev.Changed,
		Attempts: ev.Attempts,
		Duration: ev.Duration,
		Error:    ev.Error,
		Time:     ev.Time,
	})
}

// Record inserts e. The ID and Time are generated if empty.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()[:8]
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO archive_events (id, op, path, states, success, changed, attempts, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Op), e.Path, joinStates(e.States),
		boolInt(e.Success), boolInt(e.Changed), e.Attempts,
		e.Duration.Milliseconds(), nullableString(e.Error),
		e.Time.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting archive event: %w", err)
	}
	return nil
}

// List returns entries matching filter, most recent first.
func (j *Journal) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Op != "" {
		conditions = append(conditions, "op = ?")
		args = append(args, string(filter.Op))
	}
	if filter.Path != "" {
		conditions = append(conditions, "path = ?")
		args = append(args, filter.Path)
	}
	if filter.PathPrefix != "" {
		// The directory itself or anything below it; substr counts characters
		dir := strings.TrimRight(filter.PathPrefix, "/")
		conditions = append(conditions, "(path = ? OR substr(path, 1, ?) = ?)")
		args = append(args, dir, utf8.RuneCountInString(dir)+1, dir+"/")
	}
	if filter.FailedOnly {
		conditions = append(conditions, "success = 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM archive_events " + where //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := j.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting archive events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, op, path, states, success, changed, attempts, duration_ms, error, created_at
		 FROM archive_events %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var op, states, createdAt string
		var success, changed int
		var durationMS int64
		var errText sql.NullString

		if err := rows.Scan(&e.ID, &op, &e.Path, &states, &success, &changed,
			&e.Attempts, &durationMS, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning archive event: %w", err)
		}

		e.Op = archive.Op(op)
		e.States = splitStates(states)
		e.Success = success != 0
		e.Changed = changed != 0
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if errText.Valid {
			e.Error = errText.String
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			if t, err = time.Parse(time.RFC3339, createdAt); err != nil {
				return nil, fmt.Errorf("parsing archive event timestamp %q: %w", createdAt, err)
			}
		}
		e.Time = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archive events: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func joinStates(states []archive.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

func splitStates(s string) []archive.State {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	states := make([]archive.State, len(fields))
	for i, f := range fields {
		states[i] = archive.State(f)
	}
	return states
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
