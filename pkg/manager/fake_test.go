package manager

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

// callOutcome scripts one tools/call answer
type callOutcome struct {
	text    string
	isError bool
	rpcErr  *protocol.ErrorObject
	hang    bool
}

// fakeServer is an in-memory provider keyed by its stdio command.
type fakeServer struct {
	name  string
	tools []string

	mu           sync.Mutex
	outcomes     []callOutcome
	connectFails int
	connectErr   error
	live         *fakePipe

	connects atomic.Int32
	calls    atomic.Int32
}

func (s *fakeServer) script(outcomes ...callOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomes...)
}

// failConnects makes the next n connects fail with err
func (s *fakeServer) failConnects(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectFails = n
	s.connectErr = err
}

// drop simulates the provider process exiting
func (s *fakeServer) drop() {
	s.mu.Lock()
	pipe := s.live
	s.mu.Unlock()
	if pipe != nil {
		pipe.hangup()
	}
}

func (s *fakeServer) nextOutcome() callOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return callOutcome{text: s.name + " ok"}
	}
	o := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return o
}

func (s *fakeServer) answer(req *protocol.Request) *protocol.Response {
	switch req.Method {
	case protocol.MethodInitialize:
		return result(req.ID, map[string]interface{}{
			"protocolVersion": protocol.ProtocolRevision,
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]string{"name": s.name, "version": "1"},
		})
	case protocol.MethodListTools:
		tools := make([]protocol.Tool, len(s.tools))
		for i, name := range s.tools {
			tools[i] = protocol.Tool{Name: name}
		}
		return result(req.ID, protocol.ListToolsResult{Tools: tools})
	case protocol.MethodCallTool:
		s.calls.Add(1)
		o := s.nextOutcome()
		switch {
		case o.hang:
			return nil
		case o.rpcErr != nil:
			resp, _ := protocol.NewErrorResponse(req.ID, o.rpcErr.Code, o.rpcErr.Message, nil)
			return resp
		default:
			return result(req.ID, protocol.CallToolResult{
				Content: []protocol.Content{{Type: "text", Text: o.text}},
				IsError: o.isError,
			})
		}
	default:
		resp, _ := protocol.NewErrorResponse(req.ID, protocol.MethodNotFound, "method not found", nil)
		return resp
	}
}

func result(id interface{}, v interface{}) *protocol.Response {
	resp, err := protocol.NewResponse(id, v)
	if err != nil {
		panic(err)
	}
	return resp
}

// fleet routes transport configs to fake servers by command name
type fleet struct {
	mu      sync.Mutex
	servers map[string]*fakeServer
}

func newFleet(servers ...*fakeServer) *fleet {
	f := &fleet{servers: make(map[string]*fakeServer)}
	for _, s := range servers {
		f.servers[s.name] = s
	}
	return f
}

func (f *fleet) factory(config transport.Config) (transport.Transport, error) {
	f.mu.Lock()
	s, ok := f.servers[config.Stdio.Command]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("no such fake server: " + config.Stdio.Command)
	}
	return &fakePipe{server: s, inbox: make(chan []byte, 64), closed: make(chan struct{})}, nil
}

func stdioConfig(name string) transport.Config {
	cfg := transport.DefaultConfig(transport.TypeStdio)
	cfg.Stdio.Command = name
	cfg.Logger = logging.NewNop()
	return cfg
}

func newTestManager(t *testing.T, f *fleet, options ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithLogger(logging.NewNop()),
		WithConnectBackoff(time.Millisecond),
		WithClientOptions(client.WithTransportFactory(f.factory), client.WithRequestTimeout(2*time.Second)),
	}
	m := New(append(base, options...)...)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func connectAll(t *testing.T, m *Manager, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := m.ConnectServer(context.Background(), name, stdioConfig(name)); err != nil {
			t.Fatalf("connect %s: %v", name, err)
		}
	}
}

// fakePipe is one connection lifetime to a fakeServer
type fakePipe struct {
	server    *fakeServer
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

func (p *fakePipe) Connect(ctx context.Context) error {
	s := p.server
	s.connects.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectFails > 0 {
		s.connectFails--
		return s.connectErr
	}
	s.live = p
	p.connected.Store(true)
	return nil
}

func (p *fakePipe) Send(ctx context.Context, msg []byte) error {
	if !p.connected.Load() {
		return io.ErrClosedPipe
	}
	in, err := protocol.Decode(msg)
	if err != nil || in.Kind != protocol.KindRequest {
		return nil
	}
	resp := p.server.answer(in.Request)
	if resp == nil {
		return nil
	}
	data, err := protocol.Encode(resp)
	if err != nil {
		return err
	}
	select {
	case p.inbox <- data:
	case <-p.closed:
	}
	return nil
}

func (p *fakePipe) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakePipe) hangup() {
	p.connected.Store(false)
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *fakePipe) Close() error {
	p.hangup()
	return nil
}

func (p *fakePipe) IsConnected() bool { return p.connected.Load() }

func (p *fakePipe) Metadata() map[string]string {
	return map[string]string{"transport_type": "fake", "server": p.server.name}
}
