package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

// reply is a scripted answer to one request. drop leaves the request
// unanswered.
type reply struct {
	result interface{}
	err    *protocol.ErrorObject
	drop   bool
}

type handlerFunc func(req *protocol.Request) reply

// fakeProvider answers MCP requests in memory. Each transport it builds
// is one process lifetime.
type fakeProvider struct {
	mu           sync.Mutex
	capabilities string
	toolPages    [][]protocol.Tool
	resources    []protocol.Resource
	handlers     map[string]handlerFunc
	connectErr   error
	stallWrites  atomic.Bool // Send blocks until its context ends

	events     []string
	initParams json.RawMessage
	replies    []*protocol.Response
	transports []*memTransport
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		capabilities: `{"tools":{"listChanged":true},"resources":{}}`,
		toolPages: [][]protocol.Tool{{
			{Name: "echo", Description: "echoes its arguments"},
			{Name: "status"},
		}},
		resources: []protocol.Resource{{URI: "file:///README.md", Name: "README"}},
		handlers:  map[string]handlerFunc{},
	}
}

func (p *fakeProvider) factory(config transport.Config) (transport.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := &memTransport{
		provider: p,
		toClient: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
	p.transports = append(p.transports, t)
	return t, nil
}

func (p *fakeProvider) handle(method string, h handlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = h
}

func (p *fakeProvider) setToolPages(pages ...[]protocol.Tool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolPages = pages
}

func (p *fakeProvider) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakeProvider) lastTransport() *memTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transports[len(p.transports)-1]
}

func (p *fakeProvider) transportCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transports)
}

func (p *fakeProvider) clientReplies() []*protocol.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.Response(nil), p.replies...)
}

func (p *fakeProvider) record(in *protocol.Inbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch in.Kind {
	case protocol.KindRequest:
		p.events = append(p.events, in.Request.Method)
		if in.Request.Method == protocol.MethodInitialize {
			p.initParams = in.Request.Params
		}
	case protocol.KindNotification:
		p.events = append(p.events, in.Notification.Method)
	case protocol.KindResponse:
		p.replies = append(p.replies, in.Response)
	}
}

func (p *fakeProvider) serve(t *memTransport, req *protocol.Request) {
	p.mu.Lock()
	h, ok := p.handlers[req.Method]
	p.mu.Unlock()

	var r reply
	if ok {
		r = h(req)
	} else {
		r = p.defaultReply(req)
	}
	if r.drop {
		return
	}

	var (
		resp *protocol.Response
		err  error
	)
	if r.err != nil {
		resp, err = protocol.NewErrorResponse(req.ID, r.err.Code, r.err.Message, nil)
	} else {
		resp, err = protocol.NewResponse(req.ID, r.result)
	}
	if err != nil {
		return
	}
	data, err := protocol.Encode(resp)
	if err != nil {
		return
	}
	t.push(bytes.TrimSuffix(data, []byte("\n")))
}

func (p *fakeProvider) defaultReply(req *protocol.Request) reply {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.Method {
	case protocol.MethodInitialize:
		return reply{result: map[string]interface{}{
			"protocolVersion": protocol.ProtocolRevision,
			"capabilities":    json.RawMessage(p.capabilities),
			"serverInfo":      protocol.Implementation{Name: "fake", Version: "0.1.0"},
		}}

	case protocol.MethodListTools:
		var params protocol.PaginatedParams
		_ = json.Unmarshal(req.Params, &params)
		page := 0
		if params.Cursor != "" {
			page, _ = strconv.Atoi(params.Cursor)
		}
		result := protocol.ListToolsResult{Tools: []protocol.Tool{}}
		if page < len(p.toolPages) {
			result.Tools = p.toolPages[page]
		}
		if page+1 < len(p.toolPages) {
			result.NextCursor = strconv.Itoa(page + 1)
		}
		return reply{result: result}

	case protocol.MethodListResources:
		return reply{result: protocol.ListResourcesResult{Resources: p.resources}}

	case protocol.MethodReadResource:
		var params protocol.ReadResourceParams
		_ = json.Unmarshal(req.Params, &params)
		return reply{result: map[string]interface{}{
			"contents": []map[string]string{{"uri": params.URI, "text": "hello from " + params.URI}},
		}}

	case protocol.MethodCallTool:
		var params protocol.CallToolParams
		_ = json.Unmarshal(req.Params, &params)
		if params.Name == "fail" {
			return reply{result: protocol.CallToolResult{
				Content: []protocol.Content{{Type: "text", Text: "boom"}},
				IsError: true,
			}}
		}
		return reply{result: protocol.CallToolResult{
			Content: []protocol.Content{{Type: "text", Text: string(params.Arguments)}},
		}}

	case protocol.MethodPing:
		return reply{result: struct{}{}}
	}

	return reply{err: &protocol.ErrorObject{Code: protocol.MethodNotFound, Message: "method not found"}}
}

// memTransport connects a Connection to a fakeProvider without any I/O.
type memTransport struct {
	provider  *fakeProvider
	toClient  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

func (t *memTransport) Connect(ctx context.Context) error {
	if err := t.provider.connectErr; err != nil {
		return err
	}
	t.connected.Store(true)
	return nil
}

func (t *memTransport) Send(ctx context.Context, msg []byte) error {
	if !t.connected.Load() {
		return mcperrors.TransportNotInitialized("memory")
	}
	if t.provider.stallWrites.Load() {
		<-ctx.Done()
		_ = t.Close()
		return ctx.Err()
	}
	in, err := protocol.Decode(msg)
	if err != nil {
		return err
	}
	t.provider.record(in)
	if in.Kind == protocol.KindRequest {
		go t.provider.serve(t, in.Request)
	}
	return nil
}

// push delivers a raw line to the client, as if the provider wrote it.
func (t *memTransport) push(line []byte) {
	select {
	case t.toClient <- line:
	case <-t.closed:
	}
}

func (t *memTransport) pushString(line string) { t.push([]byte(line)) }

func (t *memTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-t.toClient:
		return msg, nil
	case <-t.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hangup simulates the provider process exiting.
func (t *memTransport) hangup() { _ = t.Close() }

func (t *memTransport) Close() error {
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		close(t.closed)
	})
	return nil
}

func (t *memTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *memTransport) IsConnected() bool { return t.connected.Load() }

func (t *memTransport) Metadata() map[string]string {
	return map[string]string{"transport_type": "memory"}
}

func newTestConnection(t *testing.T, p *fakeProvider, options ...Option) *Connection {
	t.Helper()
	cfg := transport.DefaultConfig(transport.TypeStdio)
	cfg.Stdio.Command = "fake-provider"
	cfg.Logger = logging.NewNop()

	options = append([]Option{WithTransportFactory(p.factory)}, options...)
	conn := New("fake", cfg, options...)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
