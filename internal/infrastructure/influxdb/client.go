package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/hsm-core/internal/infrastructure/config"
)

// Timeouts for InfluxDB round trips.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

// Batching defaults. A directory walk can emit one point per file, so
// points are batched rather than written one request each.
const (
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client records archive operations and directory walks in InfluxDB.
//
// It implements archive.Observer, so a Manager can feed it every register,
// release and recall call. Points are written with the non-blocking write
// API: a record call never waits on the network, and failures reach the
// SetOnError callback instead of the caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	mu      sync.RWMutex
	closed  bool
	onError func(err error)

	// failedWrites counts batches the server rejected.
	failedWrites atomic.Int64
}

// clientOptions maps the configured batching and default tags onto the
// InfluxDB client options.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flush.Milliseconds()))

	// Every point carries the site tags, e.g. the filesystem name
	for k, v := range cfg.Tags {
		opts.AddDefaultTag(k, v)
	}
	return opts
}

// Connect creates a client for cfg and pings the server before returning.
// It fails with ErrDisabled when InfluxDB is switched off and with
// ErrConnectionFailed when the server cannot be reached or is unhealthy.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	// Verify the server before handing out a write API
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}
	go c.drainErrors(c.writeAPI.Errors())

	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}

// drainErrors forwards asynchronous write failures to the callback. It
// returns when the client is closed and the channel with it.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failedWrites.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("writing to bucket %s: %w", c.bucket, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// FailedWrites returns how many write batches the server has rejected.
func (c *Client) FailedWrites() int64 {
	return c.failedWrites.Load()
}

// IsConnected reports whether the client still accepts points. It does not
// ping; use HealthCheck for that.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := ping(checkCtx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends every buffered point and waits for the requests to be made.
// archive-dir calls it after recording the walk so the summary is not left
// waiting for the flush interval. It is a no-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes buffered points and releases the client. Points recorded
// afterwards are dropped. Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	// Flush before Close; the write API drops its buffer on shutdown
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
