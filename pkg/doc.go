// Package pkg groups the components of the MCP fleet client.
//
// The sub-packages build on each other, leaf first:
//
//   - protocol: JSON-RPC 2.0 envelopes and the MCP message types
//   - errors: the error taxonomy and its recoverability rules
//   - auth: credentials applied to WebSocket handshakes
//   - transport: stdio and WebSocket transports plus middleware
//   - client: one Connection per provider with request correlation and
//     the initialize handshake
//   - metrics: per-tool, per-provider statistics
//   - health: worst-of status aggregation
//   - manager: the provider fleet with sequential failover
//   - observability: Prometheus and OpenTelemetry adapters
//   - config: YAML fleet files with hot reload
//
// Most programs only need manager and config:
//
//	cfg, err := config.Load("fleet.yaml")
//	if err != nil {
//	    return err
//	}
//	m := manager.New(append(cfg.ManagerOptions(), manager.WithLogger(cfg.Logger()))...)
//	defer m.Shutdown(context.Background())
//
//	if err := m.ApplyConfig(ctx, cfg.TransportConfigs()); err != nil {
//	    return err
//	}
//	m.Start(ctx)
//
//	result, err := m.ExecuteToolWithFailover(ctx, "search", args, manager.DefaultExecutionPreferences())
package pkg
