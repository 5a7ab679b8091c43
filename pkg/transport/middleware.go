package transport

import (
	"context"
)

// Middleware represents a transport middleware that can wrap a transport
// to add cross-cutting behavior such as logging or tracing.
type Middleware interface {
	// Wrap wraps the given transport with middleware functionality
	Wrap(transport Transport) Transport
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Transport) Transport

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(t Transport) Transport {
	return f(t)
}

// ChainMiddleware chains multiple middleware together
func ChainMiddleware(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(transport Transport) Transport {
		// Apply middleware in reverse order so the first middleware is the outermost
		for i := len(middleware) - 1; i >= 0; i-- {
			transport = middleware[i].Wrap(transport)
		}
		return transport
	})
}

// middlewareTransport is a base type for middleware implementations
type middlewareTransport struct {
	next Transport
}

func (m *middlewareTransport) Connect(ctx context.Context) error {
	return m.next.Connect(ctx)
}

func (m *middlewareTransport) Send(ctx context.Context, msg []byte) error {
	return m.next.Send(ctx, msg)
}

func (m *middlewareTransport) Receive(ctx context.Context) ([]byte, error) {
	return m.next.Receive(ctx)
}

func (m *middlewareTransport) Close() error {
	return m.next.Close()
}

func (m *middlewareTransport) IsConnected() bool {
	return m.next.IsConnected()
}

func (m *middlewareTransport) Metadata() map[string]string {
	return m.next.Metadata()
}

// MiddlewareBuilder builds middleware from configuration
type MiddlewareBuilder struct {
	config Config
}

// NewMiddlewareBuilder creates a new middleware builder
func NewMiddlewareBuilder(config Config) *MiddlewareBuilder {
	return &MiddlewareBuilder{config: config}
}

// Build constructs the middleware chain based on configuration. Tracing is
// outermost so logged errors fall inside the span.
func (mb *MiddlewareBuilder) Build() []Middleware {
	var middleware []Middleware

	if mb.config.Observability.EnableTracing {
		middleware = append(middleware, NewTracingMiddleware(mb.config))
	}

	if mb.config.Observability.EnableLogging {
		middleware = append(middleware, NewLoggingMiddleware(mb.config))
	}

	return middleware
}
