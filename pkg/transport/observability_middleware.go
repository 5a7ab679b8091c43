package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

// LoggingMiddleware logs lifecycle events at Info and message traffic at
// Debug through the configured logger.
type LoggingMiddleware struct {
	logger logging.Logger
}

// NewLoggingMiddleware creates a logging middleware for the given config.
func NewLoggingMiddleware(config Config) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &LoggingMiddleware{
		logger: logger.WithFields(
			logging.String("transport", string(config.Type)),
			logging.String("endpoint", config.Endpoint()),
		),
	}
}

// Wrap implements the Middleware interface
func (lm *LoggingMiddleware) Wrap(transport Transport) Transport {
	return &loggingTransport{
		middlewareTransport: middlewareTransport{next: transport},
		logger:              lm.logger,
	}
}

type loggingTransport struct {
	middlewareTransport
	logger logging.Logger
}

func (lt *loggingTransport) Connect(ctx context.Context) error {
	start := time.Now()
	err := lt.middlewareTransport.Connect(ctx)
	if err != nil {
		lt.logger.WithError(err).Warn("transport connect failed", logging.Duration("duration", time.Since(start)))
		return err
	}
	lt.logger.Info("transport connected", logging.Duration("duration", time.Since(start)))
	return nil
}

func (lt *loggingTransport) Send(ctx context.Context, msg []byte) error {
	err := lt.middlewareTransport.Send(ctx, msg)
	if err != nil {
		lt.logger.WithContext(ctx).WithError(err).Warn("transport send failed", logging.Int("bytes", len(msg)))
		return err
	}
	lt.logger.WithContext(ctx).Debug("message sent", logging.Int("bytes", len(msg)))
	return nil
}

func (lt *loggingTransport) Receive(ctx context.Context) ([]byte, error) {
	msg, err := lt.middlewareTransport.Receive(ctx)
	switch {
	case err == nil:
		lt.logger.Debug("message received", logging.Int("bytes", len(msg)))
	case errors.Is(err, io.EOF):
		lt.logger.Debug("transport stream ended")
	case errors.Is(err, ErrMessageTooLarge):
		lt.logger.WithError(err).Warn("inbound message rejected")
	default:
		lt.logger.WithError(err).Warn("transport receive failed")
	}
	return msg, err
}

func (lt *loggingTransport) Close() error {
	err := lt.middlewareTransport.Close()
	if err != nil {
		lt.logger.WithError(err).Warn("transport close failed")
		return err
	}
	lt.logger.Info("transport closed")
	return nil
}

// TracingMiddleware records an OpenTelemetry span for connect, send and
// close. Receive is not traced since it blocks for the life of the
// connection.
type TracingMiddleware struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

// NewTracingMiddleware creates a tracing middleware. It uses config.Tracer
// when set and the global tracer provider otherwise.
func NewTracingMiddleware(config Config) Middleware {
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/ajitpratap0/mcp-fleet/pkg/transport")
	}
	return &TracingMiddleware{
		tracer: tracer,
		attrs: []attribute.KeyValue{
			attribute.String("mcp.transport", string(config.Type)),
			attribute.String("mcp.endpoint", config.Endpoint()),
			attribute.String("mcp.service", config.Observability.ServiceName),
		},
	}
}

// Wrap implements the Middleware interface
func (tm *TracingMiddleware) Wrap(transport Transport) Transport {
	return &tracingTransport{
		middlewareTransport: middlewareTransport{next: transport},
		middleware:          tm,
	}
}

type tracingTransport struct {
	middlewareTransport
	middleware *TracingMiddleware
}

func (tt *tracingTransport) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tt.middleware.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tt.middleware.attrs...),
		trace.WithAttributes(attrs...),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (tt *tracingTransport) Connect(ctx context.Context) error {
	ctx, span := tt.span(ctx, "transport.connect")
	err := tt.middlewareTransport.Connect(ctx)
	finishSpan(span, err)
	return err
}

func (tt *tracingTransport) Send(ctx context.Context, msg []byte) error {
	ctx, span := tt.span(ctx, "transport.send", attribute.Int("mcp.message.size", len(msg)))
	err := tt.middlewareTransport.Send(ctx, msg)
	finishSpan(span, err)
	return err
}

func (tt *tracingTransport) Close() error {
	_, span := tt.span(context.Background(), "transport.close")
	err := tt.middlewareTransport.Close()
	finishSpan(span, err)
	return err
}
