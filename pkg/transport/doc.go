// Package transport provides config-driven, message-oriented transports to
// MCP providers.
//
// A Transport moves already-encoded JSON-RPC messages one at a time. It
// knows nothing about ids or methods; request correlation lives in
// pkg/client.
//
// # Supported Transport Types
//
// StdioTransport:
//   - Spawns the provider as a child process
//   - One message per line on stdin and stdout
//   - Provider stderr is drained into the logger at Debug
//   - Close kills the process and waits up to ShutdownTimeout
//
// WebSocketTransport:
//   - One message per text frame over gorilla/websocket
//   - Credentials from pkg/auth are applied to the handshake
//   - Read and write pumps run in an errgroup with ping keepalive
//
// # Usage
//
//	cfg := transport.DefaultConfig(transport.TypeWebSocket)
//	cfg.WebSocket.URL = "wss://tools.example.com/mcp"
//	cfg.WebSocket.Auth = auth.Config{Type: auth.TypeBearer, Token: token}
//	cfg.Observability.EnableLogging = true
//	t, err := transport.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := t.Connect(ctx); err != nil {
//	    return err
//	}
//	defer t.Close()
//
// # Middleware
//
// New wraps the base transport with the middleware selected in
// Config.Observability. Custom middleware implements Middleware and is
// composed with ChainMiddleware; the first middleware given is the
// outermost.
//
// # Message Size
//
// Inbound messages larger than Config.MaxMessageSize (10 MiB by default)
// are rejected with an error matching ErrMessageTooLarge. The stdio stream
// stays usable after such a message; a websocket connection does not.
package transport
