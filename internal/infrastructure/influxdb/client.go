package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// Stats counts points handed to the client and batches the server
// rejected.
type Stats struct {
	Queued uint64
	Failed uint64
}

// Client queues points on the batched, non-blocking write API. Failed
// batches are reported to the SetOnError callback. Safe for concurrent
// use.
type Client struct {
	client influxdb2.Client
	writer api.WriteAPI

	closed  atomic.Bool
	onError atomic.Pointer[func(error)]
	queued  atomic.Uint64
	failed  atomic.Uint64
}

// Connect opens a client and pings the server. It returns ErrDisabled
// when cfg.Enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.drainErrors()
	return c, nil
}

// writeOptions maps batch settings onto the client options. Zero values
// keep the library defaults.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(uint(cfg.BatchSize)) // #nosec G115 -- checked positive
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval) * uint(time.Second/time.Millisecond)) // #nosec G115 -- checked positive
	}
	return opts
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !ok:
		return fmt.Errorf("ping: server not healthy")
	}
	return nil
}

// drainErrors runs until the write API closes its error channel.
func (c *Client) drainErrors() {
	for err := range c.writer.Errors() {
		c.failed.Add(1)
		if fn := c.onError.Load(); fn != nil {
			(*fn)(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError installs the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// WritePoint queues p for the next batch. Ignored after Close.
func (c *Client) WritePoint(p *write.Point) {
	if p == nil || !c.IsConnected() {
		return
	}
	c.queued.Add(1)
	c.writer.WritePoint(p)
}

// Flush forces the pending batch out.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{Queued: c.queued.Load(), Failed: c.failed.Load()}
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && !c.closed.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client. Repeated calls
// are no-ops.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writer.Flush()
	c.client.Close()
	return nil
}
