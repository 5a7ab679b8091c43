package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-fleet/internal/mcptest"
	"github.com/ajitpratap0/mcp-fleet/pkg/auth"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

func echoTool(prefix string) mcptest.ToolFunc {
	return func(_ context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
		var in struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(args, &in)
		return mcptest.TextResult(prefix + in.Query), nil
	}
}

func newWebSocketProvider(t *testing.T, options ...mcptest.Option) (*mcptest.Provider, transport.Config) {
	t.Helper()
	p := mcptest.NewProvider("remote", options...)
	for _, name := range []string{"search", "fetch", "summarize", "translate", "classify"} {
		p.AddTool(protocol.Tool{Name: name}, echoTool(name+":"))
	}
	p.AddResource(protocol.Resource{URI: "mem://motd", Name: "motd"}, "hello fleet")

	srv := httptest.NewServer(p.WebSocketHandler())
	t.Cleanup(srv.Close)

	cfg := transport.DefaultConfig(transport.TypeWebSocket)
	cfg.WebSocket.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/mcp"
	cfg.Timeouts.Connect = 2 * time.Second
	cfg.Logger = logging.NewNop()
	return p, cfg
}

func TestWebSocketProviderEndToEnd(t *testing.T) {
	p, cfg := newWebSocketProvider(t, mcptest.WithPageSize(2), mcptest.WithBearerToken("t0ken"))
	cfg.WebSocket.Auth = auth.Config{Type: auth.TypeBearer, Token: "t0ken"}

	conn := New("remote", cfg)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))

	assert.Len(t, conn.Tools(), 5, "all pages must be collected")
	assert.Len(t, conn.Resources(), 1)
	assert.Equal(t, "remote", conn.ServerInfo().Name)

	result, err := conn.CallTool(ctx, "search", map[string]string{"query": "mcp"})
	require.NoError(t, err)
	assert.Equal(t, "search:mcp", result.Text())
	assert.Equal(t, 1, p.Calls("search"))

	raw, err := conn.ReadResource(ctx, "mem://motd")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hello fleet")

	require.NoError(t, conn.Ping(ctx))
}

func TestWebSocketProviderRejectsMissingToken(t *testing.T) {
	_, cfg := newWebSocketProvider(t, mcptest.WithBearerToken("t0ken"))

	conn := New("remote", cfg)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := conn.Connect(ctx)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryTransport), "got %v", err)
	assert.Equal(t, StateError, conn.State())
}

func TestWebSocketProviderToolListChanged(t *testing.T) {
	p, cfg := newWebSocketProvider(t)

	conn := New("remote", cfg)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	require.False(t, conn.HasTool("deploy"))

	p.AddTool(protocol.Tool{Name: "deploy"}, echoTool("deploy:"))
	assert.Eventually(t, func() bool { return conn.HasTool("deploy") }, 2*time.Second, 10*time.Millisecond)

	p.RemoveTool("search")
	assert.Eventually(t, func() bool { return !conn.HasTool("search") }, 2*time.Second, 10*time.Millisecond)
}
