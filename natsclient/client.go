// Package natsclient manages the NATS connection used for event publishing
// and KV persistence. It wraps nats.go with connection lifecycle handling,
// reconnect callbacks, and a small KV wrapper with CAS support.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/0xSardius/castmark/errors"
	"github.com/0xSardius/castmark/metric"
)

// Status represents the connection status
type Status int

// Possible connection statuses
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client manages a NATS connection and its JetStream context
type Client struct {
	url  string
	nc   *nats.Conn
	js   jetstream.JetStream
	name string

	maxReconnects  int
	reconnectWait  time.Duration
	connectTimeout time.Duration

	metrics *metric.Metrics
	logger  *slog.Logger
	status  atomic.Value // Status
}

// NewClient creates a new client for the given NATS URL. The client does not
// connect until Connect is called.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSClient", "NewClient", "url validation")
	}

	c := &Client{
		url:            url,
		name:           "castmark",
		maxReconnects:  -1, // reconnect forever
		reconnectWait:  2 * time.Second,
		connectTimeout: 5 * time.Second,
		logger:         slog.Default().With("component", "natsclient"),
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "NATSClient", "NewClient", "apply option")
		}
	}

	return c, nil
}

// Connect establishes the connection and the JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusConnected {
		return nil
	}
	c.status.Store(StatusConnecting)

	nc, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusDisconnected)
			c.setConnectedMetric(false)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(StatusConnected)
			c.setConnectedMetric(true)
			if c.metrics != nil {
				c.metrics.NATSReconnects.Inc()
			}
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(StatusClosed)
			c.setConnectedMetric(false)
		}),
	)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "NATSClient", "Connect", "connect to "+c.url)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "NATSClient", "Connect", "create JetStream context")
	}

	c.nc = nc
	c.js = js
	c.status.Store(StatusConnected)
	c.setConnectedMetric(true)
	c.logger.Info("NATS connected", "url", nc.ConnectedUrl())

	// Confirm the server is responsive before declaring success
	if err := nc.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "NATSClient", "Connect", "initial flush")
	}

	return nil
}

// Close drains and closes the connection.
func (c *Client) Close(ctx context.Context) error {
	if c.nc == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.nc.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			c.nc.Close()
			return errors.WrapTransient(err, "NATSClient", "Close", "drain connection")
		}
	case <-ctx.Done():
		c.nc.Close()
	}

	c.status.Store(StatusClosed)
	c.setConnectedMetric(false)
	return nil
}

// Conn returns the underlying connection, or nil before Connect.
func (c *Client) Conn() *nats.Conn {
	return c.nc
}

// Status returns the current connection status
func (c *Client) Status() Status {
	return c.status.Load().(Status)
}

// IsHealthy reports whether the connection is up
func (c *Client) IsHealthy() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// RTT measures the round-trip time to the server
func (c *Client) RTT() (time.Duration, error) {
	if c.nc == nil {
		return 0, errors.WrapTransient(errors.ErrNoConnection, "NATSClient", "RTT", "connection check")
	}
	return c.nc.RTT()
}

// CreateKeyValueBucket creates or opens a JetStream KV bucket.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "NATSClient", "CreateKeyValueBucket", "connection check")
	}

	bucket, err := c.js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrBucketExists) {
			return c.js.KeyValue(ctx, cfg.Bucket)
		}
		return nil, errors.WrapTransient(err, "NATSClient", "CreateKeyValueBucket", "create bucket "+cfg.Bucket)
	}
	return bucket, nil
}

func (c *Client) setConnectedMetric(connected bool) {
	if c.metrics != nil {
		c.metrics.SetNATSConnected(connected)
	}
}
