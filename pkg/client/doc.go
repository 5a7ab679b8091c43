// Package client implements one logical connection to an MCP provider.
//
// A Connection owns exactly one live transport at a time. It runs the
// initialize handshake, caches the provider's tools and resources, and
// correlates outgoing requests with their responses by id:
//
//   - Requests get a UUID id and wait on a single-slot channel.
//   - A dedicated reader goroutine owns Transport.Receive and routes each
//     inbound message to its waiter, the notification channel, or, for
//     server-initiated requests, a MethodNotFound reply.
//   - Closing the connection, or the provider closing the stream, fails
//     every outstanding request with a connection-lost error.
//
// # Creating a Connection
//
//	cfg := transport.DefaultConfig(transport.TypeStdio)
//	cfg.Stdio.Command = "mcp-server-git"
//
//	conn := client.New("git", cfg,
//	    client.WithName("fleet"),
//	    client.WithRequestTimeout(10*time.Second),
//	)
//	if err := conn.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	result, err := conn.CallTool(ctx, "git_status", map[string]interface{}{"repo_path": "."})
//
// # Errors
//
// All errors are pkg/errors MCPError values. Provider error responses keep
// their JSON-RPC code; a tool result flagged isError becomes a recoverable
// ToolExecutionFailed error. Requests never retry on their own.
package client
