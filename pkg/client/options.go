package client

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

const (
	defaultClientName         = "mcp-fleet"
	defaultClientVersion      = "1.0.0"
	defaultNotificationBuffer = 64
)

// TransportFactory builds a fresh transport for each connection attempt.
type TransportFactory func(config transport.Config) (transport.Transport, error)

// Option configures a Connection
type Option func(*Connection)

// WithName sets the client name sent in clientInfo
func WithName(name string) Option {
	return func(c *Connection) {
		c.clientName = name
	}
}

// WithVersion sets the client version sent in clientInfo
func WithVersion(version string) Option {
	return func(c *Connection) {
		c.clientVersion = version
	}
}

// WithRequestTimeout sets the default per-request timeout. A deadline on
// the caller's context takes precedence.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Connection) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for request spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Connection) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithTransportFactory replaces transport.New. Tests use it to inject
// in-memory transports.
func WithTransportFactory(factory TransportFactory) Option {
	return func(c *Connection) {
		if factory != nil {
			c.factory = factory
		}
	}
}

// WithNotificationBuffer sets the capacity of the notification channel.
// Notifications arriving while it is full are dropped.
func WithNotificationBuffer(size int) Option {
	return func(c *Connection) {
		if size > 0 {
			c.notificationBuffer = size
		}
	}
}
