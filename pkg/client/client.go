package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

const tracerName = "github.com/ajitpratap0/mcp-fleet/pkg/client"

// State is the lifecycle state of a Connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and YAML reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Connection is one logical connection to a provider.
type Connection struct {
	name    string
	config  transport.Config
	factory TransportFactory

	clientName         string
	clientVersion      string
	requestTimeout     time.Duration
	notificationBuffer int
	logger             logging.Logger
	tracer             trace.Tracer

	// lifecycleMu serializes Connect, Reconnect and Close.
	lifecycleMu sync.Mutex

	mu           sync.RWMutex
	session      *session
	state        State
	lastErr      error
	capabilities protocol.ServerCapabilities
	serverInfo   protocol.Implementation
	protocolVer  string
	tools        []protocol.Tool
	resources    []protocol.Resource
	connectedAt  time.Time

	notifications chan *protocol.Notification
	background    sync.WaitGroup
}

// New creates a disconnected Connection for the named provider. Nothing is
// spawned or dialed until Connect.
func New(name string, config transport.Config, options ...Option) *Connection {
	c := &Connection{
		name:               name,
		config:             config,
		factory:            transport.New,
		clientName:         defaultClientName,
		clientVersion:      defaultClientVersion,
		requestTimeout:     config.Timeouts.Request,
		notificationBuffer: defaultNotificationBuffer,
		logger:             config.Logger,
		tracer:             config.Tracer,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = transport.DefaultRequestTimeout
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}

	for _, option := range options {
		option(c)
	}

	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	c.logger = c.logger.WithFields(logging.String("provider", name))
	if c.config.Logger == nil {
		c.config.Logger = c.logger
	}
	if c.config.Tracer == nil {
		c.config.Tracer = c.tracer
	}
	c.notifications = make(chan *protocol.Notification, c.notificationBuffer)
	return c
}

// Connect builds a transport, connects it and runs the handshake. Failure
// before the initialized notification leaves the connection in StateError
// with empty caches. Failure to list tools or resources is logged and
// leaves the connection usable.
func (c *Connection) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.State() == StateConnected {
		return nil
	}
	return c.connectLocked(ctx)
}

// Reconnect closes the current transport, failing its pending requests,
// and connects a new one built by the same factory.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.logger.Info("reconnecting provider")
	return c.connectLocked(ctx)
}

func (c *Connection) connectLocked(ctx context.Context) error {
	c.mu.Lock()
	old := c.session
	c.session = nil
	c.state = StateConnecting
	c.lastErr = nil
	c.clearInventoryLocked()
	c.mu.Unlock()

	if old != nil {
		if err := old.shutdown(); err != nil {
			c.logger.Debug("closing previous transport failed", logging.ErrorField(err))
		}
	}

	tr, err := c.factory(c.config)
	if err != nil {
		c.fail(err)
		return err
	}
	if err := tr.Connect(ctx); err != nil {
		_ = tr.Close()
		c.fail(err)
		return err
	}

	s := newSession(tr, c.config)
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	go c.readLoop(s)

	result, err := c.handshake(ctx, s)
	if err == nil {
		c.mu.Lock()
		if s.isClosed() {
			err = s.closeError()
		} else {
			c.state = StateConnected
			c.capabilities = protocol.ParseServerCapabilities(result.Capabilities)
			c.serverInfo = result.ServerInfo
			c.protocolVer = result.ProtocolVersion
			c.connectedAt = time.Now()
		}
		c.mu.Unlock()
	}
	if err != nil {
		_ = s.shutdown()
		err = mcperrors.ConnectionFailed(string(c.config.Type), c.config.Endpoint(), err)
		c.mu.Lock()
		if c.session == s {
			c.session = nil
		}
		c.mu.Unlock()
		c.fail(err)
		return err
	}

	c.loadInventory(ctx, s)

	c.logger.Info("provider connected",
		logging.String("server", result.ServerInfo.Name),
		logging.String("server_version", result.ServerInfo.Version),
		logging.Int("tools", len(c.Tools())),
		logging.Int("resources", len(c.Resources())),
	)
	return nil
}

func (c *Connection) fail(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	c.clearInventoryLocked()
	c.mu.Unlock()
	c.logger.Warn("provider connect failed", logging.ErrorField(err))
}

func (c *Connection) clearInventoryLocked() {
	c.capabilities = protocol.ServerCapabilities{}
	c.serverInfo = protocol.Implementation{}
	c.protocolVer = ""
	c.tools = nil
	c.resources = nil
}

// Close stops the reader, closes the transport and fails pending requests.
// It is safe to call more than once.
func (c *Connection) Close() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	s := c.session
	prev := c.state
	c.session = nil
	c.state = StateDisconnected
	c.lastErr = nil
	c.clearInventoryLocked()
	c.mu.Unlock()

	var err error
	if s != nil {
		err = s.shutdown()
	}
	c.background.Wait()

	if prev != StateDisconnected {
		c.logger.Info("provider disconnected")
	}
	return err
}

// readLoop owns Transport.Receive for the lifetime of one session.
func (c *Connection) readLoop(s *session) {
	defer close(s.readerDone)

	var cause error
	for {
		msg, err := s.transport.Receive(s.ctx)
		if err != nil {
			if errors.Is(err, transport.ErrMessageTooLarge) {
				c.logger.Warn("dropping oversized message", logging.ErrorField(err))
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				cause = err
			}
			break
		}
		c.dispatch(s, msg)
	}

	lost := mcperrors.ConnectionLost(s.transportType, s.endpoint, cause)
	s.failPending(lost)
	c.sessionEnded(s, lost)
}

func (c *Connection) sessionEnded(s *session, err error) {
	c.mu.Lock()
	if c.session != s || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Warn("provider connection lost", logging.ErrorField(err))
}

func (c *Connection) dispatch(s *session, msg []byte) {
	in, err := protocol.Decode(msg)
	if err != nil {
		c.logger.Warn("dropping malformed message",
			logging.ErrorField(err),
			logging.Int("size", len(msg)),
		)
		return
	}

	switch in.Kind {
	case protocol.KindResponse:
		if !s.deliver(in.Response) {
			c.logger.Debug("dropping response with no pending request",
				logging.String("id", protocol.IDKey(in.Response.ID)),
			)
		}
	case protocol.KindNotification:
		c.handleNotification(in.Notification)
	case protocol.KindRequest:
		c.answerServerRequest(s, in.Request)
	}
}

func (c *Connection) handleNotification(n *protocol.Notification) {
	switch n.Method {
	case protocol.MethodToolsListChanged:
		c.refreshInBackground("tools", func(ctx context.Context) error {
			_, err := c.RefreshTools(ctx)
			return err
		})
	case protocol.MethodResourcesListChanged:
		c.refreshInBackground("resources", func(ctx context.Context) error {
			_, err := c.RefreshResources(ctx)
			return err
		})
	case protocol.MethodLogMessage:
		c.logProviderMessage(n.Params)
	}

	select {
	case c.notifications <- n:
	default:
		c.logger.Debug("notification buffer full, dropping", logging.String("method", n.Method))
	}
}

func (c *Connection) refreshInBackground(what string, refresh func(context.Context) error) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		if err := refresh(ctx); err != nil {
			c.logger.Warn("refresh after list change failed",
				logging.String("list", what),
				logging.ErrorField(err),
			)
		}
	}()
}

func (c *Connection) logProviderMessage(params json.RawMessage) {
	var msg protocol.LogMessageParams
	if err := json.Unmarshal(params, &msg); err != nil {
		return
	}
	fields := []logging.Field{
		logging.String("provider_level", msg.Level),
		logging.String("provider_logger", msg.Logger),
		logging.String("data", string(msg.Data)),
	}
	switch msg.Level {
	case "debug":
		c.logger.Debug("provider log", fields...)
	case "info", "notice":
		c.logger.Info("provider log", fields...)
	case "warning":
		c.logger.Warn("provider log", fields...)
	default:
		c.logger.Error("provider log", fields...)
	}
}

// answerServerRequest replies to requests initiated by the provider. Only
// ping is supported; everything else gets MethodNotFound.
func (c *Connection) answerServerRequest(s *session, req *protocol.Request) {
	var (
		resp *protocol.Response
		err  error
	)
	if req.Method == protocol.MethodPing {
		resp, err = protocol.NewResponse(req.ID, struct{}{})
	} else {
		c.logger.Debug("rejecting server request", logging.String("method", req.Method))
		resp, err = protocol.NewErrorResponse(req.ID, protocol.MethodNotFound,
			fmt.Sprintf("method %q is not supported by this client", req.Method), nil)
	}
	if err != nil {
		return
	}
	data, err := protocol.Encode(resp)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, c.requestTimeout)
	defer cancel()
	if err := s.transport.Send(ctx, data); err != nil {
		c.logger.Warn("failed to answer server request",
			logging.String("method", req.Method),
			logging.ErrorField(err),
		)
	}
}

// SendRequest sends a request and waits for its response. The default
// request timeout applies unless ctx already carries a deadline.
func (c *Connection) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.roundTrip(ctx, c.activeSession(), method, params)
}

// SendNotification sends a notification; no response is expected.
func (c *Connection) SendNotification(ctx context.Context, method string, params interface{}) error {
	return c.notify(ctx, c.activeSession(), method, params)
}

func (c *Connection) roundTrip(ctx context.Context, s *session, method string, params interface{}) (json.RawMessage, error) {
	if s == nil {
		return nil, mcperrors.TransportNotInitialized(string(c.config.Type))
	}

	id := uuid.NewString()
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode request params",
			mcperrors.CategoryProtocol, mcperrors.SeverityError)
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return nil, mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode request",
			mcperrors.CategoryProtocol, mcperrors.SeverityError)
	}

	timeout := c.requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, "mcp.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.String("mcp.provider", c.name),
			attribute.String("mcp.request_id", id),
		),
	)
	result, err := c.await(ctx, s, id, method, data, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return result, err
}

func (c *Connection) await(ctx context.Context, s *session, id, method string, data []byte, timeout time.Duration) (json.RawMessage, error) {
	ch, err := s.register(id)
	if err != nil {
		return nil, err
	}
	defer s.remove(id)

	start := time.Now()
	if err := s.transport.Send(ctx, data); err != nil {
		if ctx.Err() != nil {
			return nil, c.expired(ctx, s, id, method, timeout)
		}
		return nil, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		c.logger.Debug("request completed",
			logging.String("method", method),
			logging.String("id", id),
			logging.Duration("duration", time.Since(start)),
		)
		if r.resp.Error != nil {
			return nil, mcperrors.FromJSONRPCError(r.resp.Error, method)
		}
		return r.resp.Result, nil

	case <-ctx.Done():
		return nil, c.expired(ctx, s, id, method, timeout)
	}
}

func (c *Connection) expired(ctx context.Context, s *session, id, method string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return mcperrors.ResponseTimeout(s.transportType, id, timeout).
			WithContext(&mcperrors.Context{RequestID: id, Method: method, Provider: c.name, Timestamp: time.Now()})
	}
	return mcperrors.OperationCancelled(method)
}

func (c *Connection) notify(ctx context.Context, s *session, method string, params interface{}) error {
	if s == nil {
		return mcperrors.TransportNotInitialized(string(c.config.Type))
	}
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode notification params",
			mcperrors.CategoryProtocol, mcperrors.SeverityError)
	}
	data, err := protocol.Encode(n)
	if err != nil {
		return mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode notification",
			mcperrors.CategoryProtocol, mcperrors.SeverityError)
	}
	return s.transport.Send(ctx, data)
}

// CallTool invokes tools/call. A result flagged isError is returned as a
// recoverable ToolExecutionFailed error.
func (c *Connection) CallTool(ctx context.Context, name string, args interface{}) (*protocol.CallToolResult, error) {
	var arguments json.RawMessage
	switch a := args.(type) {
	case nil:
	case json.RawMessage:
		arguments = a
	default:
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode tool arguments",
				mcperrors.CategoryProtocol, mcperrors.SeverityError)
		}
		arguments = raw
	}

	raw, err := c.SendRequest(ctx, protocol.MethodCallTool, protocol.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var result protocol.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, mcperrors.ProtocolError(fmt.Sprintf("invalid %s result: %v", protocol.MethodCallTool, err))
	}
	if result.IsError {
		message := result.Text()
		if message == "" {
			message = "tool reported an error"
		}
		return nil, mcperrors.ToolExecutionFailed(name, c.name, message, true)
	}
	return &result, nil
}

// ReadResource invokes resources/read and returns the raw result.
func (c *Connection) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	s, caps := c.activeSessionCaps()
	if s == nil {
		return nil, mcperrors.TransportNotInitialized(string(c.config.Type))
	}
	if !caps.SupportsResources() {
		return nil, mcperrors.CapabilityMissing(c.name, "resources")
	}
	return c.roundTrip(ctx, s, protocol.MethodReadResource, protocol.ReadResourceParams{URI: uri})
}

// Ping checks that the provider answers requests.
func (c *Connection) Ping(ctx context.Context) error {
	_, err := c.SendRequest(ctx, protocol.MethodPing, nil)
	return err
}

func (c *Connection) activeSession() *session {
	s, _ := c.activeSessionCaps()
	return s
}

func (c *Connection) activeSessionCaps() (*session, protocol.ServerCapabilities) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected {
		return nil, protocol.ServerCapabilities{}
	}
	return c.session, c.capabilities
}

// Name returns the provider name
func (c *Connection) Name() string { return c.name }

// Config returns the transport configuration the connection was built with
func (c *Connection) Config() transport.Config { return c.config }

// State returns the lifecycle state
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the error that moved the connection to StateError.
func (c *Connection) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// IsConnected reports whether the handshake completed and the transport is
// still up.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected && c.session != nil && c.session.transport.IsConnected()
}

// TransportConnected reports the transport's own view of its link.
func (c *Connection) TransportConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && c.session.transport.IsConnected()
}

// Capabilities returns the capabilities advertised in initialize
func (c *Connection) Capabilities() protocol.ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// ServerInfo returns the provider's serverInfo
func (c *Connection) ServerInfo() protocol.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// ConnectedAt returns when the last successful handshake completed.
func (c *Connection) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// Notifications returns provider notifications in arrival order. The
// channel is never closed; select on it together with a context.
func (c *Connection) Notifications() <-chan *protocol.Notification {
	return c.notifications
}

// PendingRequests returns the number of requests awaiting a response.
func (c *Connection) PendingRequests() int {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil {
		return 0
	}
	return s.pendingCount()
}

// Metadata merges the transport's metadata with the connection's own.
func (c *Connection) Metadata() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	md := map[string]string{}
	if c.session != nil {
		for k, v := range c.session.transport.Metadata() {
			md[k] = v
		}
	}
	md["provider"] = c.name
	md["state"] = c.state.String()
	md["tools"] = strconv.Itoa(len(c.tools))
	md["resources"] = strconv.Itoa(len(c.resources))
	if c.serverInfo.Name != "" {
		md["server_name"] = c.serverInfo.Name
		md["server_version"] = c.serverInfo.Version
	}
	if c.protocolVer != "" {
		md["protocol_version"] = c.protocolVer
	}
	return md
}
