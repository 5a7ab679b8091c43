package manager

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	"github.com/ajitpratap0/mcp-fleet/pkg/health"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/metrics"
)

const (
	// DefaultHealthCheckInterval is the period of the health loop
	DefaultHealthCheckInterval = 30 * time.Second
	// DefaultMaintenanceInterval is the period of the reconnect loop
	DefaultMaintenanceInterval = 60 * time.Second
	// DefaultConnectRetries is how often ConnectServer retries after the
	// first failed attempt
	DefaultConnectRetries = 3
	// DefaultConnectBackoff is the first delay between connect attempts
	DefaultConnectBackoff = time.Second
	// DefaultToolTimeout bounds one failover attempt
	DefaultToolTimeout = 30 * time.Second

	applyConcurrency = 8
)

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager's logger. Connections inherit it unless
// their transport config names another.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTracer sets the tracer used for failover spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithRankingPolicy replaces ByHealthAndLatency
func WithRankingPolicy(policy RankingPolicy) Option {
	return func(m *Manager) {
		if policy != nil {
			m.ranking = policy
		}
	}
}

// WithHealthInterval sets the health loop period
func WithHealthInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.healthInterval = d
		}
	}
}

// WithMaintenanceInterval sets the reconnect loop period
func WithMaintenanceInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maintenanceInterval = d
		}
	}
}

// WithConnectRetries sets how many times a failed connect is retried.
// Zero disables retries.
func WithConnectRetries(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.connectRetries = n
		}
	}
}

// WithConnectBackoff sets the first delay between connect attempts
func WithConnectBackoff(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectBackoff = d
		}
	}
}

// WithMetricsSink forwards every metrics event to sink
func WithMetricsSink(sink metrics.Sink) Option {
	return func(m *Manager) {
		m.metricsOptions = append(m.metricsOptions, metrics.WithSink(sink))
	}
}

// WithHealthCheck adds a probe to every health sweep
func WithHealthCheck(check health.Check) Option {
	return func(m *Manager) {
		m.healthOptions = append(m.healthOptions, health.WithCheck(check))
	}
}

// WithClientOptions are applied to every Connection the manager creates
func WithClientOptions(options ...client.Option) Option {
	return func(m *Manager) {
		m.clientOptions = append(m.clientOptions, options...)
	}
}
