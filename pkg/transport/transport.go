package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-fleet/pkg/auth"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

// Transport moves one encoded message at a time to and from a provider.
// Send may be called concurrently. Receive is called from a single reader
// goroutine and returns io.EOF once the transport is closed.
type Transport interface {
	// Connect establishes the underlying channel. A transport is single use:
	// after Close it cannot be connected again.
	Connect(ctx context.Context) error

	// Send writes one encoded message. A trailing newline is optional.
	Send(ctx context.Context, msg []byte) error

	// Receive returns the next inbound message without its line terminator.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the channel and unblocks Receive.
	Close() error

	IsConnected() bool

	// Metadata describes the transport for logs and health reports.
	Metadata() map[string]string
}

// Type identifies the base transport implementation
type Type string

const (
	TypeStdio     Type = "stdio"
	TypeWebSocket Type = "websocket"
)

const (
	// DefaultMaxMessageSize bounds a single inbound message.
	DefaultMaxMessageSize = 10 * 1024 * 1024
	// DefaultConnectTimeout bounds the websocket dial.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultRequestTimeout is the per-request window advertised to clients.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultPingInterval is the websocket keepalive period.
	DefaultPingInterval = 30 * time.Second
	// ShutdownTimeout bounds how long Close waits for a child process.
	ShutdownTimeout = 5 * time.Second
)

// Errors
var (
	ErrUnsupportedTransportType = errors.New("unsupported transport type")
	ErrMessageTooLarge          = errors.New("message too large")
	ErrAlreadyClosed            = errors.New("transport already closed")
)

// Config is the unified configuration for all transports
type Config struct {
	Type Type `yaml:"type" json:"type"`

	Stdio     StdioConfig     `yaml:"stdio" json:"stdio"`
	WebSocket WebSocketConfig `yaml:"websocket" json:"websocket"`
	Timeouts  TimeoutConfig   `yaml:"timeouts" json:"timeouts"`

	// MaxMessageSize bounds a single inbound message in bytes.
	MaxMessageSize int `yaml:"max_message_size" json:"max_message_size"`

	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Logger receives transport logs and provider stderr. Defaults to
	// logging.Default().
	Logger logging.Logger `yaml:"-" json:"-"`
	// Tracer is used by the tracing middleware. Defaults to the global
	// otel tracer provider.
	Tracer trace.Tracer `yaml:"-" json:"-"`
}

// StdioConfig describes the provider process to spawn.
type StdioConfig struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	Dir     string            `yaml:"dir" json:"dir"`
}

// WebSocketConfig describes the socket to dial.
type WebSocketConfig struct {
	URL          string            `yaml:"url" json:"url"`
	Headers      map[string]string `yaml:"headers" json:"headers"`
	Auth         auth.Config       `yaml:"auth" json:"auth"`
	PingInterval time.Duration     `yaml:"ping_interval" json:"ping_interval"`
}

// TimeoutConfig holds the connect and per-request windows. They are
// independent of each other.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect" json:"connect"`
	Request time.Duration `yaml:"request" json:"request"`
}

// ObservabilityConfig selects the middleware applied by New.
type ObservabilityConfig struct {
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing"`
	EnableLogging bool   `yaml:"enable_logging" json:"enable_logging"`
	ServiceName   string `yaml:"service_name" json:"service_name"`
}

// DefaultConfig returns a config for the given type with every default set.
func DefaultConfig(t Type) Config {
	cfg := Config{Type: t}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = DefaultConnectTimeout
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = DefaultRequestTimeout
	}
	if c.Type == TypeWebSocket && c.WebSocket.PingInterval <= 0 {
		c.WebSocket.PingInterval = DefaultPingInterval
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "mcp-fleet"
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

// Validate reports the first invalid field as a configuration error.
func (c Config) Validate() error {
	switch c.Type {
	case TypeStdio:
		if c.Stdio.Command == "" {
			return mcperrors.InvalidConfig("stdio.command", "command is required for stdio transports")
		}
	case TypeWebSocket:
		if c.WebSocket.URL == "" {
			return mcperrors.InvalidConfig("websocket.url", "url is required for websocket transports")
		}
		u, err := url.Parse(c.WebSocket.URL)
		if err != nil {
			return mcperrors.InvalidConfig("websocket.url", err.Error())
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return mcperrors.InvalidConfig("websocket.url", fmt.Sprintf("scheme must be ws or wss, got %q", u.Scheme))
		}
		if err := c.WebSocket.Auth.Validate(); err != nil {
			return err
		}
	case "":
		return mcperrors.InvalidConfig("type", "transport type is required")
	default:
		return mcperrors.InvalidConfig("type", fmt.Sprintf("%v: %q", ErrUnsupportedTransportType, c.Type))
	}

	if c.MaxMessageSize < 0 {
		return mcperrors.InvalidConfig("max_message_size", "must not be negative")
	}
	if c.Timeouts.Connect < 0 || c.Timeouts.Request < 0 {
		return mcperrors.InvalidConfig("timeouts", "must not be negative")
	}
	return nil
}

// Endpoint returns a printable, credential-free description of where the
// transport connects.
func (c Config) Endpoint() string {
	switch c.Type {
	case TypeStdio:
		return c.Stdio.Command
	case TypeWebSocket:
		if u, err := url.Parse(c.WebSocket.URL); err == nil {
			return auth.Redact(u)
		}
		return c.WebSocket.URL
	default:
		return ""
	}
}

// New creates a transport with the specified configuration and wraps it
// with the middleware the configuration enables.
func New(config Config) (Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	var base Transport
	switch config.Type {
	case TypeStdio:
		base = newStdioTransport(config)
	case TypeWebSocket:
		base = newWebSocketTransport(config)
	default:
		return nil, ErrUnsupportedTransportType
	}

	middleware := NewMiddlewareBuilder(config).Build()
	return ChainMiddleware(middleware...).Wrap(base), nil
}

// tooLarge builds the error returned for an oversized inbound message. It
// matches both ErrMessageTooLarge and the MessageTooLarge MCP error.
func tooLarge(transport string, size, limit int) error {
	return fmt.Errorf("%w: %w", ErrMessageTooLarge, mcperrors.MessageTooLarge(transport, size, limit))
}

func baseMetadata(config Config) map[string]string {
	return map[string]string{
		"transport_type":     string(config.Type),
		"connect_timeout_ms": fmt.Sprintf("%d", config.Timeouts.Connect.Milliseconds()),
		"request_timeout_ms": fmt.Sprintf("%d", config.Timeouts.Request.Milliseconds()),
		"max_message_size":   fmt.Sprintf("%d", config.MaxMessageSize),
	}
}
