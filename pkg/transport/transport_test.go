package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-fleet/pkg/auth"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(TypeWebSocket)
	assert.Equal(t, TypeWebSocket, cfg.Type)
	assert.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.NotNil(t, cfg.Logger)

	stdio := DefaultConfig(TypeStdio)
	assert.Zero(t, stdio.WebSocket.PingInterval)
	assert.Equal(t, 10*1024*1024, stdio.MaxMessageSize)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"stdio ok", Config{Type: TypeStdio, Stdio: StdioConfig{Command: "mcp-git"}}, ""},
		{"stdio missing command", Config{Type: TypeStdio}, "stdio.command"},
		{"websocket ok", Config{Type: TypeWebSocket, WebSocket: WebSocketConfig{URL: "wss://h/mcp"}}, ""},
		{"websocket missing url", Config{Type: TypeWebSocket}, "websocket.url"},
		{"websocket http scheme", Config{Type: TypeWebSocket, WebSocket: WebSocketConfig{URL: "http://h/mcp"}}, "websocket.url"},
		{"websocket bad auth", Config{Type: TypeWebSocket, WebSocket: WebSocketConfig{URL: "ws://h", Auth: auth.Config{Type: auth.TypeBearer}}}, "auth.token"},
		{"missing type", Config{}, "type"},
		{"unknown type", Config{Type: "carrier-pigeon"}, "type"},
		{"negative size", Config{Type: TypeStdio, Stdio: StdioConfig{Command: "x"}, MaxMessageSize: -1}, "max_message_size"},
		{"negative timeout", Config{Type: TypeStdio, Stdio: StdioConfig{Command: "x"}, Timeouts: TimeoutConfig{Request: -time.Second}}, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryConfiguration))
			mcpErr, ok := mcperrors.AsMCPError(err)
			require.True(t, ok)
			data, ok := mcpErr.Data().(*mcperrors.ConfigErrorData)
			require.True(t, ok)
			assert.Equal(t, tt.field, data.Field)
		})
	}
}

func TestConfigEndpointRedactsCredentials(t *testing.T) {
	cfg := Config{Type: TypeWebSocket, WebSocket: WebSocketConfig{URL: "wss://u:p@h/mcp?token=abc"}}
	assert.NotContains(t, cfg.Endpoint(), "abc")
	assert.NotContains(t, cfg.Endpoint(), "u:p")

	assert.Equal(t, "mcp-git", Config{Type: TypeStdio, Stdio: StdioConfig{Command: "mcp-git"}}.Endpoint())
}

func TestNew(t *testing.T) {
	t.Run("stdio without middleware", func(t *testing.T) {
		cfg := Config{Type: TypeStdio, Stdio: StdioConfig{Command: "mcp-git"}, Logger: logging.NewNop()}
		tr, err := New(cfg)
		require.NoError(t, err)
		_, ok := tr.(*StdioTransport)
		assert.True(t, ok)
		assert.False(t, tr.IsConnected())
		assert.Equal(t, "30000", tr.Metadata()["request_timeout_ms"], "defaults are applied")
	})

	t.Run("websocket with middleware", func(t *testing.T) {
		cfg := Config{
			Type:          TypeWebSocket,
			WebSocket:     WebSocketConfig{URL: "ws://127.0.0.1:1/mcp"},
			Observability: ObservabilityConfig{EnableLogging: true, EnableTracing: true},
			Logger:        logging.NewNop(),
		}
		tr, err := New(cfg)
		require.NoError(t, err)
		_, ok := tr.(*tracingTransport)
		assert.True(t, ok, "tracing is the outermost middleware")
		assert.Equal(t, "websocket", tr.Metadata()["transport_type"])
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := New(Config{Type: TypeStdio})
		assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidConfig))
	})
}
