package mcptest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
)

func request(t *testing.T, id int, method string, params interface{}) []byte {
	t.Helper()
	req, err := protocol.NewRequest(id, method, params)
	require.NoError(t, err)
	data, err := protocol.Encode(req)
	require.NoError(t, err)
	return data
}

func roundTrip(t *testing.T, p *Provider, method string, params interface{}) *protocol.Response {
	t.Helper()
	reply := p.Handle(context.Background(), request(t, 1, method, params))
	require.NotNil(t, reply)
	in, err := protocol.Decode(reply)
	require.NoError(t, err)
	require.Equal(t, protocol.KindResponse, in.Kind)
	return in.Response
}

func newGitProvider(options ...Option) *Provider {
	p := NewProvider("git", options...)
	for _, name := range []string{"status", "log", "diff", "blame", "show"} {
		p.AddTool(protocol.Tool{Name: name}, func(_ context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
			return TextResult("ran " + name), nil
		})
	}
	return p
}

func TestInitialize(t *testing.T) {
	p := newGitProvider(WithVersion("2.1.0"))

	resp := roundTrip(t, p, protocol.MethodInitialize, protocol.InitializeParams{ProtocolVersion: protocol.ProtocolRevision})
	require.Nil(t, resp.Error)

	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "git", result.ServerInfo.Name)
	assert.Equal(t, "2.1.0", result.ServerInfo.Version)

	caps := protocol.ParseServerCapabilities(result.Capabilities)
	assert.True(t, caps.SupportsTools())
	assert.False(t, caps.SupportsResources())
}

func TestListToolsPages(t *testing.T) {
	p := newGitProvider(WithPageSize(2))

	var (
		names  []string
		cursor string
		pages  int
	)
	for {
		resp := roundTrip(t, p, protocol.MethodListTools, protocol.PaginatedParams{Cursor: cursor})
		require.Nil(t, resp.Error)
		var page protocol.ListToolsResult
		require.NoError(t, json.Unmarshal(resp.Result, &page))
		for _, tool := range page.Tools {
			names = append(names, tool.Name)
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"blame", "diff", "log", "show", "status"}, names)

	resp := roundTrip(t, p, protocol.MethodListTools, protocol.PaginatedParams{Cursor: "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

func TestCallTool(t *testing.T) {
	p := newGitProvider()
	p.AddTool(protocol.Tool{Name: "push"}, func(context.Context, json.RawMessage) (*protocol.CallToolResult, error) {
		return nil, errors.New("remote rejected")
	})
	p.AddTool(protocol.Tool{Name: "gc"}, func(context.Context, json.RawMessage) (*protocol.CallToolResult, error) {
		return nil, &protocol.ErrorObject{Code: protocol.InternalError, Message: "repository locked"}
	})

	resp := roundTrip(t, p, protocol.MethodCallTool, protocol.CallToolParams{Name: "status"})
	require.Nil(t, resp.Error)
	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "ran status", result.Text())
	assert.Equal(t, 1, p.Calls("status"))

	resp = roundTrip(t, p, protocol.MethodCallTool, protocol.CallToolParams{Name: "push"})
	require.Nil(t, resp.Error)
	result = protocol.CallToolResult{}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
	assert.Equal(t, "remote rejected", result.Text())

	resp = roundTrip(t, p, protocol.MethodCallTool, protocol.CallToolParams{Name: "gc"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InternalError, resp.Error.Code)

	resp = roundTrip(t, p, protocol.MethodCallTool, protocol.CallToolParams{Name: "rebase"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
	assert.Zero(t, p.Calls("rebase"))
}

func TestResources(t *testing.T) {
	p := NewProvider("docs")
	p.AddResource(protocol.Resource{URI: "file:///README.md", MimeType: "text/markdown"}, "# fleet")

	resp := roundTrip(t, p, protocol.MethodReadResource, protocol.ReadResourceParams{URI: "file:///README.md"})
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"text":"# fleet"`)
	assert.Contains(t, string(resp.Result), `"mimeType":"text/markdown"`)

	resp = roundTrip(t, p, protocol.MethodReadResource, protocol.ReadResourceParams{URI: "file:///missing"})
	require.NotNil(t, resp.Error)

	resp = roundTrip(t, p, protocol.MethodListResources, nil)
	require.Nil(t, resp.Error)
	var list protocol.ListResourcesResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Resources, 1)
}

func TestHandleIgnoresNotifications(t *testing.T) {
	p := NewProvider("quiet")
	n, err := protocol.NewNotification(protocol.MethodInitialized, nil)
	require.NoError(t, err)
	data, err := protocol.Encode(n)
	require.NoError(t, err)

	assert.Nil(t, p.Handle(context.Background(), data))

	resp := roundTrip(t, p, "prompts/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound, resp.Error.Code)
}

func TestServeStdio(t *testing.T) {
	p := newGitProvider()

	var in bytes.Buffer
	in.Write(request(t, 1, protocol.MethodPing, nil))
	in.WriteString("\n")
	in.Write(request(t, 2, protocol.MethodCallTool, protocol.CallToolParams{Name: "log"}))

	var out safeBuffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.ServeStdio(ctx, &in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, out.String(), "ran log")
}

func TestServeStdioAnnouncesToolChanges(t *testing.T) {
	p := NewProvider("dynamic")

	pr, pw := io.Pipe()
	var out safeBuffer
	done := make(chan error, 1)
	go func() { done <- p.ServeStdio(context.Background(), pr, &out) }()

	require.Eventually(t, func() bool {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return len(p.sessions) == 1
	}, time.Second, 5*time.Millisecond)

	p.AddTool(protocol.Tool{Name: "late"}, func(context.Context, json.RawMessage) (*protocol.CallToolResult, error) {
		return TextResult("ok"), nil
	})
	assert.Contains(t, out.String(), protocol.MethodToolsListChanged)

	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
}
