package mcp

import (
	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	"github.com/ajitpratap0/mcp-fleet/pkg/config"
	"github.com/ajitpratap0/mcp-fleet/pkg/manager"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

// Version represents the current version of the fleet client
const Version = "0.1.0"

// ProtocolRevision is the MCP revision offered during initialize
const ProtocolRevision = protocol.ProtocolRevision

// Core types
type (
	Manager              = manager.Manager
	Connection           = client.Connection
	TransportConfig      = transport.Config
	ExecutionPreferences = manager.ExecutionPreferences
	Tool                 = protocol.Tool
	CallToolResult       = protocol.CallToolResult
)

// Transport types
const (
	TransportStdio     = transport.TypeStdio
	TransportWebSocket = transport.TypeWebSocket
)

// These exports provide direct access to the core components
var (
	// NewManager creates a manager with no providers
	NewManager = manager.New

	// NewConnection creates a single provider connection
	NewConnection = client.New

	// DefaultTransportConfig returns a transport config with defaults set
	DefaultTransportConfig = transport.DefaultConfig

	// DefaultExecutionPreferences tries every provider with the default timeout
	DefaultExecutionPreferences = manager.DefaultExecutionPreferences

	// LoadConfig reads a fleet YAML file
	LoadConfig = config.Load
)

// Manager options
var (
	WithLogger              = manager.WithLogger
	WithTracer              = manager.WithTracer
	WithRankingPolicy       = manager.WithRankingPolicy
	WithHealthInterval      = manager.WithHealthInterval
	WithMaintenanceInterval = manager.WithMaintenanceInterval
	WithConnectRetries      = manager.WithConnectRetries
	WithMetricsSink         = manager.WithMetricsSink
	WithHealthCheck         = manager.WithHealthCheck
	WithClientOptions       = manager.WithClientOptions
)

// Connection options
var (
	WithClientName     = client.WithName
	WithClientVersion  = client.WithVersion
	WithRequestTimeout = client.WithRequestTimeout
)

// Ranking policies
var (
	ByName             = manager.ByName
	ByHealthAndLatency = manager.ByHealthAndLatency
)
