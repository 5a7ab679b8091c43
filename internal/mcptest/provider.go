// Package mcptest runs in-process MCP providers over stdio pipes or
// WebSocket connections. It answers the subset of the protocol a fleet
// client uses: initialize, ping, paginated tools/list and resources/list,
// tools/call and resources/read.
package mcptest

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
)

// ToolFunc implements one tool. An error of type *protocol.ErrorObject is
// sent as a JSON-RPC error; any other error becomes an isError result.
type ToolFunc func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error)

// TextResult wraps text in a single content item
func TextResult(text string) *protocol.CallToolResult {
	return &protocol.CallToolResult{Content: []protocol.Content{{Type: "text", Text: text}}}
}

// Provider is safe for concurrent use. Tools and resources may be added
// while sessions are being served; connected clients are told with a
// list_changed notification.
type Provider struct {
	name     string
	version  string
	pageSize int
	token    string

	mu        sync.RWMutex
	tools     map[string]protocol.Tool
	handlers  map[string]ToolFunc
	resources map[string]protocol.Resource
	contents  map[string]string
	calls     map[string]int
	sessions  map[int]func([]byte) error
	nextID    int
}

// Option configures a Provider
type Option func(*Provider)

// WithVersion sets the version reported in serverInfo
func WithVersion(version string) Option {
	return func(p *Provider) { p.version = version }
}

// WithPageSize splits list results into pages of n items
func WithPageSize(n int) Option {
	return func(p *Provider) { p.pageSize = n }
}

// WithBearerToken makes the WebSocket handler reject upgrades that do not
// carry "Authorization: Bearer token".
func WithBearerToken(token string) Option {
	return func(p *Provider) { p.token = token }
}

// NewProvider creates a provider with no tools
func NewProvider(name string, options ...Option) *Provider {
	p := &Provider{
		name:      name,
		version:   "1.0.0",
		tools:     make(map[string]protocol.Tool),
		handlers:  make(map[string]ToolFunc),
		resources: make(map[string]protocol.Resource),
		contents:  make(map[string]string),
		calls:     make(map[string]int),
		sessions:  make(map[int]func([]byte) error),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// AddTool registers or replaces a tool
func (p *Provider) AddTool(tool protocol.Tool, fn ToolFunc) {
	p.mu.Lock()
	p.tools[tool.Name] = tool
	p.handlers[tool.Name] = fn
	p.mu.Unlock()
	p.broadcast(protocol.MethodToolsListChanged)
}

// RemoveTool unregisters a tool
func (p *Provider) RemoveTool(name string) {
	p.mu.Lock()
	delete(p.tools, name)
	delete(p.handlers, name)
	p.mu.Unlock()
	p.broadcast(protocol.MethodToolsListChanged)
}

// AddResource registers a text resource
func (p *Provider) AddResource(resource protocol.Resource, text string) {
	p.mu.Lock()
	p.resources[resource.URI] = resource
	p.contents[resource.URI] = text
	p.mu.Unlock()
	p.broadcast(protocol.MethodResourcesListChanged)
}

// Calls returns how often tool was invoked
func (p *Provider) Calls(tool string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.calls[tool]
}

func (p *Provider) attach(send func([]byte) error) (detach func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.sessions[id] = send
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.sessions, id)
		p.mu.Unlock()
	}
}

func (p *Provider) broadcast(method string) {
	n, err := protocol.NewNotification(method, nil)
	if err != nil {
		return
	}
	data, err := protocol.Encode(n)
	if err != nil {
		return
	}

	p.mu.RLock()
	sends := make([]func([]byte) error, 0, len(p.sessions))
	for _, send := range p.sessions {
		sends = append(sends, send)
	}
	p.mu.RUnlock()

	for _, send := range sends {
		_ = send(data)
	}
}

// Handle answers one inbound message. It returns nil for notifications,
// responses and undecodable input.
func (p *Provider) Handle(ctx context.Context, msg []byte) []byte {
	in, err := protocol.Decode(msg)
	if err != nil {
		resp, _ := protocol.NewErrorResponse(nil, protocol.ParseError, err.Error(), nil)
		data, _ := protocol.Encode(resp)
		return data
	}
	if in.Kind != protocol.KindRequest {
		return nil
	}

	req := in.Request
	result, rpcErr := p.dispatch(ctx, req)

	var resp *protocol.Response
	if rpcErr != nil {
		resp, err = protocol.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	} else {
		resp, err = protocol.NewResponse(req.ID, result)
	}
	if err != nil {
		resp, _ = protocol.NewErrorResponse(req.ID, protocol.InternalError, err.Error(), nil)
	}
	data, _ := protocol.Encode(resp)
	return data
}

func (p *Provider) dispatch(ctx context.Context, req *protocol.Request) (interface{}, *protocol.ErrorObject) {
	switch req.Method {
	case protocol.MethodInitialize:
		return p.initialize(), nil
	case protocol.MethodPing:
		return struct{}{}, nil
	case protocol.MethodListTools:
		return p.listTools(req.Params)
	case protocol.MethodCallTool:
		return p.callTool(ctx, req.Params)
	case protocol.MethodListResources:
		return p.listResources(req.Params)
	case protocol.MethodReadResource:
		return p.readResource(req.Params)
	default:
		return nil, &protocol.ErrorObject{Code: protocol.MethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (p *Provider) initialize() interface{} {
	p.mu.RLock()
	hasResources := len(p.resources) > 0
	p.mu.RUnlock()

	caps := map[string]interface{}{
		"tools": map[string]bool{"listChanged": true},
	}
	if hasResources {
		caps["resources"] = map[string]bool{"listChanged": true}
	}
	return map[string]interface{}{
		"protocolVersion": protocol.ProtocolRevision,
		"capabilities":    caps,
		"serverInfo":      protocol.Implementation{Name: p.name, Version: p.version},
	}
}

func (p *Provider) listTools(params json.RawMessage) (interface{}, *protocol.ErrorObject) {
	p.mu.RLock()
	tools := make([]protocol.Tool, 0, len(p.tools))
	for _, t := range p.tools {
		tools = append(tools, t)
	}
	p.mu.RUnlock()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	start, end, next, rpcErr := p.page(params, len(tools))
	if rpcErr != nil {
		return nil, rpcErr
	}
	return protocol.ListToolsResult{Tools: tools[start:end], NextCursor: next}, nil
}

func (p *Provider) listResources(params json.RawMessage) (interface{}, *protocol.ErrorObject) {
	p.mu.RLock()
	resources := make([]protocol.Resource, 0, len(p.resources))
	for _, r := range p.resources {
		resources = append(resources, r)
	}
	p.mu.RUnlock()
	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })

	start, end, next, rpcErr := p.page(params, len(resources))
	if rpcErr != nil {
		return nil, rpcErr
	}
	return protocol.ListResourcesResult{Resources: resources[start:end], NextCursor: next}, nil
}

// page resolves the cursor, which is the decimal offset of the page.
func (p *Provider) page(params json.RawMessage, total int) (start, end int, next string, rpcErr *protocol.ErrorObject) {
	var pp protocol.PaginatedParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &pp); err != nil {
			return 0, 0, "", &protocol.ErrorObject{Code: protocol.InvalidParams, Message: err.Error()}
		}
	}
	if pp.Cursor != "" {
		n, err := strconv.Atoi(pp.Cursor)
		if err != nil || n < 0 || n > total {
			return 0, 0, "", &protocol.ErrorObject{Code: protocol.InvalidParams, Message: "invalid cursor"}
		}
		start = n
	}

	end = total
	if p.pageSize > 0 && start+p.pageSize < total {
		end = start + p.pageSize
		next = strconv.Itoa(end)
	}
	return start, end, next, nil
}

func (p *Provider) callTool(ctx context.Context, params json.RawMessage) (interface{}, *protocol.ErrorObject) {
	var call protocol.CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &protocol.ErrorObject{Code: protocol.InvalidParams, Message: err.Error()}
	}

	p.mu.Lock()
	fn, ok := p.handlers[call.Name]
	if ok {
		p.calls[call.Name]++
	}
	p.mu.Unlock()
	if !ok {
		return nil, &protocol.ErrorObject{Code: protocol.InvalidParams, Message: "unknown tool: " + call.Name}
	}

	result, err := fn(ctx, call.Arguments)
	if err != nil {
		var rpcErr *protocol.ErrorObject
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return &protocol.CallToolResult{
			Content: []protocol.Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}
	if result == nil {
		result = &protocol.CallToolResult{}
	}
	if result.Content == nil {
		result.Content = []protocol.Content{}
	}
	return result, nil
}

func (p *Provider) readResource(params json.RawMessage) (interface{}, *protocol.ErrorObject) {
	var read protocol.ReadResourceParams
	if err := json.Unmarshal(params, &read); err != nil {
		return nil, &protocol.ErrorObject{Code: protocol.InvalidParams, Message: err.Error()}
	}

	p.mu.RLock()
	res, ok := p.resources[read.URI]
	text := p.contents[read.URI]
	p.mu.RUnlock()
	if !ok {
		return nil, &protocol.ErrorObject{Code: protocol.InvalidParams, Message: "resource not found: " + read.URI}
	}

	mime := res.MimeType
	if mime == "" {
		mime = "text/plain"
	}
	return map[string]interface{}{
		"contents": []map[string]string{{"uri": read.URI, "mimeType": mime, "text": text}},
	}, nil
}
