package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

// TestHelperProvider is not a real test. It is a minimal stdio provider
// spawned by the tests below. Calling the tool "crash" exits the process
// without answering.
func TestHelperProvider(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROVIDER") != "1" {
		return
	}
	defer os.Exit(0)

	out := bufio.NewWriter(os.Stdout)
	respond := func(id json.RawMessage, result string) {
		fmt.Fprintf(out, `{"jsonrpc":"2.0","id":%s,"result":%s}`+"\n", id, result)
		out.Flush()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var msg struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params struct {
				Name string `json:"name"`
			} `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil || len(msg.ID) == 0 {
			continue
		}
		switch msg.Method {
		case "initialize":
			respond(msg.ID, `{"protocolVersion":"2025-06-18","capabilities":{"tools":{}},"serverInfo":{"name":"helper","version":"1"}}`)
		case "tools/list":
			respond(msg.ID, `{"tools":[{"name":"status"},{"name":"crash"}]}`)
		case "tools/call":
			if msg.Params.Name == "crash" {
				os.Exit(3)
			}
			respond(msg.ID, `{"content":[{"type":"text","text":"clean"}]}`)
		default:
			fmt.Fprintf(out, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`+"\n", msg.ID)
			out.Flush()
		}
	}
}

func helperProviderConfig() transport.Config {
	cfg := transport.DefaultConfig(transport.TypeStdio)
	cfg.Stdio.Command = os.Args[0]
	cfg.Stdio.Args = []string{"-test.run=TestHelperProvider"}
	cfg.Stdio.Env = map[string]string{"GO_WANT_HELPER_PROVIDER": "1"}
	cfg.Logger = logging.NewNop()
	return cfg
}

func TestStdioProviderEndToEnd(t *testing.T) {
	conn := New("helper", helperProviderConfig())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.HasTool("status"))
	assert.Equal(t, "helper", conn.ServerInfo().Name)

	result, err := conn.CallTool(ctx, "status", nil)
	require.NoError(t, err)
	assert.Equal(t, "clean", result.Text())

	_, err = conn.SendRequest(ctx, "prompts/list", nil)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeMethodNotFound))
}

func TestStdioProviderExitFailsPending(t *testing.T) {
	conn := New("helper", helperProviderConfig())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))

	_, err := conn.CallTool(ctx, "crash", nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeConnectionLost), "got %v", err)
	assert.Contains(t, err.Error(), "transport closed")

	assert.Eventually(t, func() bool { return conn.State() == StateError }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, conn.IsConnected())
}
