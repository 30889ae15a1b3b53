package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/caseta-leap/internal/infrastructure/config"
)

// pingTimeout bounds the connectivity check at startup.
const pingTimeout = 10 * time.Second

// Batching fallbacks when the config leaves them unset.
const (
	defaultBatchSize     = 100
	defaultFlushSeconds  = 10
	millisecondsInSecond = 1000
)

// Client records zone levels and scene activations to InfluxDB v2.
//
// Writes go through the non-blocking WriteAPI: points are batched in memory
// and flushed on the configured interval, so recording never blocks the
// session goroutine that observed the change. Write failures surface
// asynchronously through the SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect builds the client, verifies the server with a ping, and starts
// draining async write errors.
//
// Parameters:
//   - cfg: The influxdb section of the daemon config
//
// Returns:
//   - *Client: Ready client
//   - error: ErrDisabled when the section is disabled (callers treat
//     telemetry as optional), ErrConnectionFailed otherwise
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	up, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}
	if !up {
		client.Close()
		return nil, fmt.Errorf("%w: server reports unhealthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go c.drainWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// batchOptions translates the config batching knobs for the client,
// falling back to defaults when unset.
func batchOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}

	// #nosec G115 -- both values forced positive above
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * millisecondsInSecond)
}

// drainWriteErrors forwards async write failures to the error callback.
// The channel closes when the client closes.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes pending points and shuts the client down.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()

	return nil
}

// IsConnected reports whether the client passed its startup ping and has
// not been closed.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers a callback for async write failures. Writes are
// batched, so failures surface here rather than at the recording call.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// record enqueues one point unless the client is closed.
func (c *Client) record(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
