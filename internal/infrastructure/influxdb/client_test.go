package influxdb_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hsm-core/internal/archive"
	"github.com/nerrad567/hsm-core/internal/infrastructure/config"
	"github.com/nerrad567/hsm-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and captures line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu           sync.Mutex
	lines        []string
	healthy      bool
	rejectWrites bool
	srv          *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{healthy: true}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		f.mu.Lock()
		healthy := f.healthy
		f.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		if f.rejectWrites {
			f.mu.Unlock()
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":"invalid","message":"rejected"}`)
			return
		}
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitLines polls until at least n lines have been written. The write API
// flushes asynchronously so a Flush can return before the request lands.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		lines := f.written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.srv.URL,
		Token:         "test-token",
		Org:           "hsm",
		Bucket:        "hsm",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	f.srv.Close()

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t)
	f.healthy = false

	_, err := influxdb.Connect(context.Background(), f.config())
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Cancelled(t *testing.T) {
	f := newFakeInflux(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := influxdb.Connect(ctx, f.config()); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Flush after close is a no-op.
	client.Flush()
}

// =============================================================================
// Write Tests
// =============================================================================

func TestRecordArchiveEvent(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	tests := []struct {
		name  string
		event archive.Event
		want  []string
	}{
		{
			name: "registered",
			event: archive.Event{
				Op: archive.OpRegister, Path: "/lustre/a.dat",
				Success: true, Changed: true, Attempts: 2, Duration: 1500 * time.Millisecond,
			},
			want: []string{
				"archive_operations,op=register,outcome=ok ",
				"attempts=2i",
				"duration_ms=1500i",
				`path="/lustre/a.dat"`,
			},
		},
		{
			name: "already released",
			event: archive.Event{
				Op: archive.OpRelease, Path: "/lustre/b.dat", Success: true,
			},
			want: []string{"archive_operations,op=release,outcome=unchanged ", "success=true"},
		},
		{
			name: "recall failed",
			event: archive.Event{
				Op: archive.OpRecall, Path: "/lustre/c.dat", Attempts: 1,
			},
			want: []string{"archive_operations,op=recall,outcome=failed ", "success=false"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(f.written())
			if err := client.ObserveArchiveEvent(context.Background(), tt.event); err != nil {
				t.Fatalf("ObserveArchiveEvent() error = %v", err)
			}
			client.Flush()

			lines := f.waitLines(t, before+1)[before:]
			if len(lines) != 1 {
				t.Fatalf("wrote %d lines, want 1: %q", len(lines), lines)
			}
			for _, w := range tt.want {
				if !strings.Contains(lines[0], w) {
					t.Errorf("line %q missing %q", lines[0], w)
				}
			}
		})
	}
}

func TestRecordWalk(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	rep := archive.Report{
		Attempted:  3,
		Failures:   []archive.Result{{Path: "/lustre/x", Err: errors.New("boom")}},
		WalkErrors: []archive.Result{{Path: "/lustre/locked", Err: errors.New("denied")}},
	}
	client.RecordWalk("/lustre", rep, 2*time.Second)
	client.Flush()

	lines := f.waitLines(t, 1)
	if len(lines) != 1 {
		t.Fatalf("wrote %d lines, want 1: %q", len(lines), lines)
	}
	for _, w := range []string{"archive_walks,root=/lustre ", "attempted=3i", "failed=1i", "walk_errors=1i", "duration_ms=2000i"} {
		if !strings.Contains(lines[0], w) {
			t.Errorf("line %q missing %q", lines[0], w)
		}
	}
}

func TestConnect_DefaultTags(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.Tags = map[string]string{"filesystem": "lustre01"}
	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	client.RecordArchiveEvent(archive.Event{Op: archive.OpRegister, Path: "/lustre/a", Success: true, Changed: true})
	client.Flush()

	lines := f.waitLines(t, 1)
	if len(lines) != 1 || !strings.Contains(lines[0], "filesystem=lustre01") {
		t.Errorf("written = %q, want filesystem tag", lines)
	}
}

func TestSetOnError_WriteRejected(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	errs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	f.mu.Lock()
	f.rejectWrites = true
	f.mu.Unlock()

	client.RecordArchiveEvent(archive.Event{Op: archive.OpRelease, Path: "/lustre/b", Success: true})
	client.Flush()

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "bucket hsm") {
			t.Errorf("error = %v, want bucket in message", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnError not called for a rejected write")
	}
	if client.FailedWrites() == 0 {
		t.Error("FailedWrites() = 0 after a rejected write")
	}
}

func TestWrite_AfterCloseDropped(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.RecordArchiveEvent(archive.Event{Op: archive.OpRegister, Path: "/x", Success: true})
	client.RecordWalk("/x", archive.Report{Attempted: 1}, time.Second)

	if lines := f.written(); len(lines) != 0 {
		t.Errorf("written after close = %q, want none", lines)
	}
}
