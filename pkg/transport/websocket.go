package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-fleet/pkg/auth"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

const (
	wsWriteWait       = 10 * time.Second
	wsCloseGrace      = time.Second
	wsInboundBuffer   = 64
	wsReadBufferSize  = 64 * 1024
	wsWriteBufferSize = 64 * 1024
)

type outboundFrame struct {
	data []byte
	done chan error
}

// WebSocketTransport exchanges one message per text frame with a provider.
// A read pump feeds Receive and a write pump serializes Send, so frames
// from concurrent senders never interleave. Both pumps run in an errgroup
// and stop together.
type WebSocketTransport struct {
	config Config
	logger logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	group    *errgroup.Group
	inbound  chan []byte
	outbound chan outboundFrame
	done     chan struct{}
	writerUp chan struct{}
	endpoint string
	readErr  error

	connected        atomic.Bool
	closed           atomic.Bool
	tooLargeReported atomic.Bool
	closeOnce        sync.Once
}

func newWebSocketTransport(config Config) *WebSocketTransport {
	return &WebSocketTransport{
		config:   config,
		logger:   config.Logger.WithFields(logging.String("transport", "websocket"), logging.String("endpoint", config.Endpoint())),
		endpoint: config.Endpoint(),
		done:     make(chan struct{}),
	}
}

// NewWebSocketTransport creates an unconnected websocket transport without
// any middleware.
func NewWebSocketTransport(config Config) (*WebSocketTransport, error) {
	config.Type = TypeWebSocket
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return newWebSocketTransport(config), nil
}

// Connect dials the socket under the connect timeout, applying configured
// headers and credentials, and starts the pumps.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return ErrAlreadyClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	target, err := url.Parse(t.config.WebSocket.URL)
	if err != nil {
		return mcperrors.InvalidConfig("websocket.url", err.Error())
	}

	header := http.Header{}
	for k, v := range t.config.WebSocket.Headers {
		header.Set(k, v)
	}
	target, err = auth.Apply(ctx, t.config.WebSocket.Auth, header, target)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.config.Timeouts.Connect,
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.config.Timeouts.Connect)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, target.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		var netErr net.Error
		timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded) ||
			errors.Is(err, context.DeadlineExceeded) ||
			(errors.As(err, &netErr) && netErr.Timeout())
		if timedOut && ctx.Err() == nil {
			return mcperrors.ConnectionTimeout("websocket", t.endpoint, t.config.Timeouts.Connect)
		}
		if resp != nil {
			err = fmt.Errorf("%w (handshake status %d)", err, resp.StatusCode)
		}
		return mcperrors.ConnectionFailed("websocket", t.endpoint, err)
	}

	conn.SetReadLimit(int64(t.config.MaxMessageSize))

	pingInterval := t.config.WebSocket.PingInterval
	pongWait := 2 * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	t.conn = conn
	t.inbound = make(chan []byte, wsInboundBuffer)
	t.outbound = make(chan outboundFrame)
	t.writerUp = make(chan struct{})

	g, gctx := errgroup.WithContext(context.Background())
	t.group = g
	g.Go(func() error { return t.readPump(conn, pongWait) })
	g.Go(func() error { return t.writePump(gctx, conn, pingInterval) })

	t.connected.Store(true)
	return nil
}

func (t *WebSocketTransport) readPump(conn *websocket.Conn, pongWait time.Duration) error {
	defer close(t.inbound)
	defer t.connected.Store(false)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()

			switch {
			case t.closed.Load():
				return nil
			case errors.Is(err, websocket.ErrReadLimit):
				t.logger.Warn("inbound frame exceeded read limit", logging.Int("limit", t.config.MaxMessageSize))
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				t.logger.Info("websocket closed by peer")
			default:
				t.logger.WithError(err).Warn("websocket read failed")
			}
			return mcperrors.WebSocketTransportError("read_message", err).
				WithContext(&mcperrors.Context{Component: "WebSocketTransport", Operation: "read_pump"})
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case t.inbound <- bytes.TrimRight(data, "\r\n"):
		case <-t.done:
			return nil
		}
	}
}

func (t *WebSocketTransport) writePump(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration) error {
	defer close(t.writerUp)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-t.outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteMessage(websocket.TextMessage, frame.data)
			frame.done <- err
			if err != nil {
				return mcperrors.WebSocketTransportError("write_message", err).
					WithContext(&mcperrors.Context{Component: "WebSocketTransport", Operation: "write_pump"})
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return mcperrors.WebSocketTransportError("ping", err).
					WithContext(&mcperrors.Context{Component: "WebSocketTransport", Operation: "keepalive"})
			}

		case <-t.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// Send queues msg as one text frame and waits until it has been written.
func (t *WebSocketTransport) Send(ctx context.Context, msg []byte) error {
	if !t.connected.Load() {
		return mcperrors.TransportNotInitialized("websocket")
	}

	frame := outboundFrame{
		data: bytes.TrimRight(msg, "\n"),
		done: make(chan error, 1),
	}

	select {
	case t.outbound <- frame:
	case <-t.writerUp:
		return mcperrors.ConnectionLost("websocket", t.endpoint, nil)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-frame.done:
		if err != nil {
			return mcperrors.MessageSendError("websocket", "frame", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next inbound frame, or io.EOF once the read pump
// has stopped.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	inbound := t.inbound
	t.mu.Unlock()

	if inbound == nil {
		if t.closed.Load() {
			return nil, io.EOF
		}
		return nil, mcperrors.TransportNotInitialized("websocket")
	}

	select {
	case data, ok := <-inbound:
		if !ok {
			t.mu.Lock()
			readErr := t.readErr
			t.mu.Unlock()
			// The peer connection is unusable after an oversized frame; report
			// it once, then behave as a closed stream.
			if errors.Is(readErr, websocket.ErrReadLimit) && t.tooLargeReported.CompareAndSwap(false, true) {
				return nil, tooLarge("websocket", t.config.MaxMessageSize+1, t.config.MaxMessageSize)
			}
			return nil, io.EOF
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame, closes the socket and waits for both pumps.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.connected.Store(false)
		close(t.done)

		t.mu.Lock()
		conn, group, writerUp := t.conn, t.group, t.writerUp
		t.mu.Unlock()

		if conn == nil {
			return
		}

		select {
		case <-writerUp:
		case <-time.After(wsCloseGrace):
		}
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = mcperrors.WebSocketTransportError("close", cerr)
		}
		_ = group.Wait()
	})
	return err
}

// IsConnected reports whether both pumps are running.
func (t *WebSocketTransport) IsConnected() bool {
	return t.connected.Load()
}

// Metadata describes the transport.
func (t *WebSocketTransport) Metadata() map[string]string {
	md := baseMetadata(t.config)
	md["ws_url"] = t.endpoint
	if t.config.WebSocket.Auth.Type != auth.TypeNone {
		md["auth_type"] = string(t.config.WebSocket.Auth.Type)
	}
	md["ping_interval_ms"] = fmt.Sprintf("%d", t.config.WebSocket.PingInterval.Milliseconds())
	return md
}
