package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/metrics"
)

// MetricsConfig configures the Prometheus sink
type MetricsConfig struct {
	Namespace        string    // default: mcp
	Subsystem        string    // default: fleet
	HistogramBuckets []float64 // milliseconds
	ConstLabels      prometheus.Labels

	// HTTP endpoint served by Start
	MetricsPath string // default: /metrics
	MetricsPort int    // default: 9090

	// Registry receives the collectors. A fresh registry is created when
	// nil so several sinks can coexist in one process.
	Registry *prometheus.Registry
}

// PrometheusSink exports collector events as Prometheus metrics. It
// implements metrics.Sink.
type PrometheusSink struct {
	config   MetricsConfig
	registry *prometheus.Registry

	toolCallDuration  *prometheus.HistogramVec
	toolCallTotal     *prometheus.CounterVec
	toolErrorTotal    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	connectionState   *prometheus.GaugeVec
	connectionEvents  *prometheus.CounterVec

	mu     sync.Mutex
	server *http.Server
}

var _ metrics.Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates the collectors and registers them
func NewPrometheusSink(config MetricsConfig) (*PrometheusSink, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.Subsystem == "" {
		config.Subsystem = "fleet"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	s := &PrometheusSink{config: config, registry: config.Registry}
	s.initializeMetrics()

	if err := s.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return s, nil
}

func (s *PrometheusSink) initializeMetrics() {
	c := s.config

	s.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "tool_call_duration_milliseconds",
			Help:        "Duration of tool calls per provider in milliseconds",
			Buckets:     c.HistogramBuckets,
			ConstLabels: c.ConstLabels,
		},
		[]string{"tool", "provider", "status"},
	)

	s.toolCallTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "tool_call_total",
			Help:        "Total number of tool calls per provider",
			ConstLabels: c.ConstLabels,
		},
		[]string{"tool", "provider", "status"},
	)

	s.toolErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "tool_error_total",
			Help:        "Failed tool calls by error category",
			ConstLabels: c.ConstLabels,
		},
		[]string{"provider", "category"},
	)

	s.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "operation_duration_milliseconds",
			Help:        "Duration of fleet operations in milliseconds",
			Buckets:     c.HistogramBuckets,
			ConstLabels: c.ConstLabels,
		},
		[]string{"operation"},
	)

	s.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "connection_state",
			Help:        "Current connection state per provider (1=connected, 0=disconnected)",
			ConstLabels: c.ConstLabels,
		},
		[]string{"provider"},
	)

	s.connectionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "connection_events_total",
			Help:        "Connection transitions per provider",
			ConstLabels: c.ConstLabels,
		},
		[]string{"provider", "event"},
	)
}

// registerMetrics registers every collector. When an identical collector
// is already registered the existing one is adopted, so sinks sharing a
// registry feed the same series.
func (s *PrometheusSink) registerMetrics() error {
	var err error
	if s.toolCallDuration, err = register(s.registry, s.toolCallDuration); err != nil {
		return err
	}
	if s.toolCallTotal, err = register(s.registry, s.toolCallTotal); err != nil {
		return err
	}
	if s.toolErrorTotal, err = register(s.registry, s.toolErrorTotal); err != nil {
		return err
	}
	if s.operationDuration, err = register(s.registry, s.operationDuration); err != nil {
		return err
	}
	if s.connectionState, err = register(s.registry, s.connectionState); err != nil {
		return err
	}
	if s.connectionEvents, err = register(s.registry, s.connectionEvents); err != nil {
		return err
	}
	return nil
}

func register[T prometheus.Collector](registry *prometheus.Registry, collector T) (T, error) {
	err := registry.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, err
}

// ObserveToolCall records one tool execution attempt
func (s *PrometheusSink) ObserveToolCall(tool, provider string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.toolErrorTotal.WithLabelValues(provider, errorCategory(err)).Inc()
	}
	s.toolCallDuration.WithLabelValues(tool, provider, status).Observe(milliseconds(latency))
	s.toolCallTotal.WithLabelValues(tool, provider, status).Inc()
}

// ObserveOperation records the duration of a named operation
func (s *PrometheusSink) ObserveOperation(operation string, latency time.Duration) {
	s.operationDuration.WithLabelValues(operation).Observe(milliseconds(latency))
}

// ObserveConnection records a connection transition
func (s *PrometheusSink) ObserveConnection(provider string, connected bool) {
	if connected {
		s.connectionState.WithLabelValues(provider).Set(1)
		s.connectionEvents.WithLabelValues(provider, "connect").Inc()
		return
	}
	s.connectionState.WithLabelValues(provider).Set(0)
	s.connectionEvents.WithLabelValues(provider, "disconnect").Inc()
}

// Registry returns the registry holding the sink's collectors
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the sink's registry in the Prometheus exposition format
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Start serves the metrics endpoint on MetricsPort. It returns once the
// listener goroutine is running.
func (s *PrometheusSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.MetricsPath, s.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := s.server
	go func() {
		_ = server.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the metrics server
func (s *PrometheusSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func errorCategory(err error) string {
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		return string(mcpErr.Category())
	}
	return "unknown"
}
