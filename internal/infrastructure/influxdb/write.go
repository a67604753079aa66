package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/hsm-core/internal/archive"
)

// Measurement names.
const (
	measurementOperations = "archive_operations"
	measurementWalks      = "archive_walks"
)

// RecordArchiveEvent writes one archive operation.
//
// Tags: op, outcome (ok, failed, unchanged). The path is a field, not a
// tag, to keep series cardinality bounded on large filesystems.
// Fields: path, attempts, duration_ms, success.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) RecordArchiveEvent(ev archive.Event) {
	if !c.IsConnected() {
		return
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		measurementOperations,
		map[string]string{
			"op":      string(ev.Op),
			"outcome": outcome(ev),
		},
		map[string]interface{}{
			"path":        ev.Path,
			"attempts":    ev.Attempts,
			"duration_ms": ev.Duration.Milliseconds(),
			"success":     ev.Success,
		},
		ts,
	)
	c.writeAPI.WritePoint(point)
}

// ObserveArchiveEvent implements archive.Observer. Write failures surface
// through the SetOnError callback, never here.
func (c *Client) ObserveArchiveEvent(_ context.Context, ev archive.Event) error {
	c.RecordArchiveEvent(ev)
	return nil
}

// RecordWalk writes the summary of a directory walk.
//
// Tags: root. Fields: attempted, failed, walk_errors, duration_ms.
func (c *Client) RecordWalk(root string, rep archive.Report, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementWalks,
		map[string]string{"root": root},
		map[string]interface{}{
			"attempted":   rep.Attempted,
			"failed":      len(rep.Failures),
			"walk_errors": len(rep.WalkErrors),
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

func outcome(ev archive.Event) string {
	switch {
	case !ev.Success:
		return "failed"
	case !ev.Changed:
		return "unchanged"
	default:
		return "ok"
	}
}
