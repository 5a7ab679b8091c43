// Package mcp is the entry point of the MCP fleet client.
//
// A fleet is a set of Model Context Protocol providers, each reached over
// a child process (stdio) or a WebSocket. The Manager keeps one
// connection per provider, learns which tools each one offers during the
// initialize handshake, and routes tool calls to the providers that offer
// them. When a provider fails with a recoverable error the next one is
// tried.
//
// # Connecting providers
//
//	m := mcp.NewManager(mcp.WithLogger(logger))
//	defer m.Shutdown(context.Background())
//
//	git := mcp.DefaultTransportConfig(mcp.TransportStdio)
//	git.Stdio.Command = "mcp-git"
//	if err := m.ConnectServer(ctx, "git", git); err != nil {
//	    return err
//	}
//
//	remote := mcp.DefaultTransportConfig(mcp.TransportWebSocket)
//	remote.WebSocket.URL = "wss://tools.example.com/mcp"
//	remote.WebSocket.Auth = auth.Config{Type: auth.TypeBearer, Token: token}
//	if err := m.ConnectServer(ctx, "remote", remote); err != nil {
//	    return err
//	}
//
//	m.Start(ctx) // health and reconnect loops
//
// # Calling tools
//
//	result, err := m.ExecuteToolWithFailover(ctx, "status", nil, mcp.DefaultExecutionPreferences())
//	if err != nil {
//	    switch {
//	    case errors.IsCode(err, errors.CodeNoProviderForTool):
//	        // nobody offers the tool
//	    case errors.IsCode(err, errors.CodeAllProvidersFailed):
//	        // every candidate failed; the cause holds each attempt
//	    }
//	}
//
// # Observability
//
// Metrics are kept in memory and can be mirrored to Prometheus with
// observability.NewPrometheusSink and manager.WithMetricsSink. Failover
// runs and requests produce OpenTelemetry spans; see
// observability.NewTracingProvider.
//
// # Configuration
//
// The config package reads fleets from YAML and watches the file so a
// running manager can apply changes with ApplyConfig.
package mcp
