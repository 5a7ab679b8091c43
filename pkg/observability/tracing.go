// Package observability exports fleet telemetry: a Prometheus sink for the
// metrics collector and an OpenTelemetry tracer provider whose tracer is
// handed to connections and transports.
package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
)

const instrumentationName = "github.com/ajitpratap0/mcp-fleet"

// ExporterType selects where spans are sent
type ExporterType string

const (
	// ExporterTypeOTLPGRPC exports traces via OTLP over gRPC
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"

	// ExporterTypeOTLPHTTP exports traces via OTLP over HTTP
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"

	// ExporterTypeNone records spans but exports nothing
	ExporterTypeNone ExporterType = "none"
)

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	ExporterType ExporterType      `yaml:"exporter"`
	Endpoint     string            `yaml:"endpoint"`
	Headers      map[string]string `yaml:"headers"`
	Insecure     bool              `yaml:"insecure"`

	// SampleRate is between 0 and 1. Methods listed in AlwaysSample or
	// NeverSample override it; the method is read from the rpc.method
	// span attribute.
	SampleRate   float64  `yaml:"sample_rate"`
	AlwaysSample []string `yaml:"always_sample"`
	NeverSample  []string `yaml:"never_sample"`

	BatchTimeout time.Duration `yaml:"batch_timeout"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	MaxQueueSize int           `yaml:"max_queue_size"`

	ResourceAttributes map[string]string `yaml:"resource_attributes"`

	// SetGlobal installs the provider and propagator as otel globals
	SetGlobal bool `yaml:"set_global"`

	// Exporter overrides ExporterType. Tests pass an in-memory exporter.
	Exporter sdktrace.SpanExporter `yaml:"-"`
}

// TracingProvider owns an SDK tracer provider and its exporter
type TracingProvider struct {
	config         TracingConfig
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator

	mu       sync.Mutex
	shutdown bool
}

// NewTracingProvider builds the exporter, sampler and resource
func NewTracingProvider(ctx context.Context, config TracingConfig) (*TracingProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = "mcp-fleet"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}
	if config.Environment == "" {
		config.Environment = "development"
	}
	if config.ExporterType == "" {
		config.ExporterType = ExporterTypeNone
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = 5 * time.Second
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 512
	}
	if config.MaxQueueSize == 0 {
		config.MaxQueueSize = 2048
	}

	res := createResource(config)

	exporter := config.Exporter
	if exporter == nil {
		var err error
		exporter, err = createExporter(ctx, config)
		if err != nil {
			return nil, mcperrors.WrapError(err, mcperrors.CodeInvalidConfig,
				"failed to create trace exporter", mcperrors.CategoryConfiguration, mcperrors.SeverityError)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(config.MaxBatchSize),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(createSampler(config))),
	)

	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	if config.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagator)
	}

	return &TracingProvider{
		config:         config,
		tracerProvider: tp,
		tracer:         tp.Tracer(instrumentationName),
		propagator:     propagator,
	}, nil
}

func createResource(config TracingConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	}
	for k, v := range config.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func createExporter(ctx context.Context, config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.ExporterType {
	case ExporterTypeOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithHeaders(config.Headers)}
		if config.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case ExporterTypeOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithHeaders(config.Headers)}
		if config.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	case ExporterTypeNone:
		return discardExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %q", config.ExporterType)
	}
}

func createSampler(config TracingConfig) sdktrace.Sampler {
	if len(config.AlwaysSample) > 0 || len(config.NeverSample) > 0 {
		return &methodSampler{
			fallback:     ratioSampler(config.SampleRate),
			alwaysSample: makeStringSet(config.AlwaysSample),
			neverSample:  makeStringSet(config.NeverSample),
		}
	}
	return ratioSampler(config.SampleRate)
}

func ratioSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the tracer handed to connections and transports
func (tp *TracingProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// TracerProvider exposes the underlying SDK provider
func (tp *TracingProvider) TracerProvider() trace.TracerProvider {
	return tp.tracerProvider
}

// StartSpan starts a span on the provider's tracer
func (tp *TracingProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

// Inject writes the span context of ctx into carrier, typically the
// headers of a websocket handshake.
func (tp *TracingProvider) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	tp.propagator.Inject(ctx, carrier)
}

// Extract reads a span context from carrier
func (tp *TracingProvider) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return tp.propagator.Extract(ctx, carrier)
}

// ForceFlush exports all ended spans
func (tp *TracingProvider) ForceFlush(ctx context.Context) error {
	return tp.tracerProvider.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider. Later calls are no-ops.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.shutdown {
		return nil
	}
	tp.shutdown = true
	return tp.tracerProvider.Shutdown(ctx)
}

// methodSampler samples by the rpc.method attribute set on request spans
type methodSampler struct {
	fallback     sdktrace.Sampler
	alwaysSample map[string]struct{}
	neverSample  map[string]struct{}
}

func (ms *methodSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	method := params.Name
	for _, attr := range params.Attributes {
		if attr.Key == "rpc.method" {
			method = attr.Value.AsString()
			break
		}
	}

	psc := trace.SpanContextFromContext(params.ParentContext)
	if _, ok := ms.alwaysSample[method]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.RecordAndSample, Tracestate: psc.TraceState()}
	}
	if _, ok := ms.neverSample[method]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop, Tracestate: psc.TraceState()}
	}
	return ms.fallback.ShouldSample(params)
}

func (ms *methodSampler) Description() string {
	return fmt.Sprintf("MethodSampler{always=%s,never=%s,fallback=%s}",
		joinSet(ms.alwaysSample), joinSet(ms.neverSample), ms.fallback.Description())
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }

func makeStringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func joinSet(set map[string]struct{}) string {
	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	return strings.Join(items, ",")
}
