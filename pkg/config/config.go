// Package config loads a fleet definition from YAML.
//
// A file names the providers to connect plus the client, logging and
// tracing settings shared by all of them:
//
//	client:
//	  name: fleet
//	  request_timeout: 30s
//	logging:
//	  level: info
//	tracing:
//	  enabled: true
//	  exporter: otlp-grpc
//	  endpoint: localhost:4317
//	servers:
//	  - name: git
//	    transport: stdio
//	    command: mcp-git
//	    args: [--repo, .]
//	  - name: remote
//	    transport: websocket
//	    url: wss://tools.example.com/mcp
//	    auth: {type: bearer, token: s3cret}
//
// Watch reloads the file when it changes so a running manager can apply
// the new server list with ApplyConfig.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/mcp-fleet/pkg/auth"
	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/manager"
	"github.com/ajitpratap0/mcp-fleet/pkg/observability"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

// Config is the root of a fleet file
type Config struct {
	Client  ClientConfig   `yaml:"client"`
	Logging LoggingConfig  `yaml:"logging"`
	Tracing TracingConfig  `yaml:"tracing"`
	Servers []ServerConfig `yaml:"servers"`
}

// ClientConfig holds the settings shared by every connection
type ClientConfig struct {
	Name                string        `yaml:"name"`
	Version             string        `yaml:"version"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	ConnectRetries      *int          `yaml:"connect_retries"`
}

// LoggingConfig selects the log level and format
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TracingConfig switches span export on. The remaining fields are passed
// to observability.NewTracingProvider.
type TracingConfig struct {
	Enabled                     bool `yaml:"enabled"`
	observability.TracingConfig `yaml:",inline"`
}

// ServerConfig is one provider entry
type ServerConfig struct {
	Name      string         `yaml:"name"`
	Transport transport.Type `yaml:"transport"`

	// stdio
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`

	// websocket
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers"`
	Auth         auth.Config       `yaml:"auth"`
	PingInterval time.Duration     `yaml:"ping_interval"`

	Timeouts       transport.TimeoutConfig `yaml:"timeouts"`
	MaxMessageSize int                     `yaml:"max_message_size"`
	EnableTracing  bool                    `yaml:"enable_tracing"`
	EnableLogging  bool                    `yaml:"enable_logging"`
}

// Load reads and validates the file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a fleet definition. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, mcperrors.WrapError(err, mcperrors.CodeInvalidConfig, "invalid YAML",
			mcperrors.CategoryConfiguration, mcperrors.SeverityError)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks server names and every server's transport settings.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return mcperrors.InvalidConfig(fmt.Sprintf("servers[%d].name", i), "must not be empty")
		}
		if seen[s.Name] {
			return mcperrors.DuplicateProvider(s.Name)
		}
		seen[s.Name] = true

		if err := s.TransportConfig().Validate(); err != nil {
			return fmt.Errorf("server %s: %w", s.Name, err)
		}
	}

	switch c.Tracing.ExporterType {
	case "", observability.ExporterTypeNone, observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
	default:
		return mcperrors.InvalidConfig("tracing.exporter", fmt.Sprintf("unsupported exporter %q", c.Tracing.ExporterType))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return mcperrors.InvalidConfig("tracing.sample_rate", "must be between 0 and 1")
	}
	if c.Client.ConnectRetries != nil && *c.Client.ConnectRetries < 0 {
		return mcperrors.InvalidConfig("client.connect_retries", "must not be negative")
	}
	return nil
}

// TransportConfig converts the entry to a transport config with defaults
// applied.
func (s ServerConfig) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig(s.Transport)
	cfg.Stdio = transport.StdioConfig{
		Command: s.Command,
		Args:    s.Args,
		Env:     s.Env,
		Dir:     s.Dir,
	}
	cfg.WebSocket.URL = s.URL
	cfg.WebSocket.Headers = s.Headers
	cfg.WebSocket.Auth = s.Auth
	if s.PingInterval > 0 {
		cfg.WebSocket.PingInterval = s.PingInterval
	}
	if s.Timeouts.Connect > 0 {
		cfg.Timeouts.Connect = s.Timeouts.Connect
	}
	if s.Timeouts.Request > 0 {
		cfg.Timeouts.Request = s.Timeouts.Request
	}
	if s.MaxMessageSize > 0 {
		cfg.MaxMessageSize = s.MaxMessageSize
	}
	cfg.Observability.EnableTracing = s.EnableTracing
	cfg.Observability.EnableLogging = s.EnableLogging
	// Left unset so the manager's logger is inherited.
	cfg.Logger = nil
	return cfg
}

// TransportConfigs maps each server name to its transport config
func (c *Config) TransportConfigs() map[string]transport.Config {
	out := make(map[string]transport.Config, len(c.Servers))
	for _, s := range c.Servers {
		out[s.Name] = s.TransportConfig()
	}
	return out
}

// Logger builds a logger writing to stderr
func (c *Config) Logger() logging.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(c.Logging.Level),
		Pretty: c.Logging.Pretty,
	})
}

// ManagerOptions translates the client section. Zero values keep the
// manager's defaults.
func (c *Config) ManagerOptions() []manager.Option {
	var options []manager.Option
	if c.Client.HealthCheckInterval > 0 {
		options = append(options, manager.WithHealthInterval(c.Client.HealthCheckInterval))
	}
	if c.Client.MaintenanceInterval > 0 {
		options = append(options, manager.WithMaintenanceInterval(c.Client.MaintenanceInterval))
	}
	if c.Client.ConnectRetries != nil {
		options = append(options, manager.WithConnectRetries(*c.Client.ConnectRetries))
	}

	var clientOptions []client.Option
	if c.Client.Name != "" {
		clientOptions = append(clientOptions, client.WithName(c.Client.Name))
	}
	if c.Client.Version != "" {
		clientOptions = append(clientOptions, client.WithVersion(c.Client.Version))
	}
	if c.Client.RequestTimeout > 0 {
		clientOptions = append(clientOptions, client.WithRequestTimeout(c.Client.RequestTimeout))
	}
	if len(clientOptions) > 0 {
		options = append(options, manager.WithClientOptions(clientOptions...))
	}
	return options
}

// TracingProviderConfig returns the settings for
// observability.NewTracingProvider, with the exporter forced to none when
// tracing is disabled.
func (c *Config) TracingProviderConfig() observability.TracingConfig {
	tc := c.Tracing.TracingConfig
	if !c.Tracing.Enabled {
		tc.ExporterType = observability.ExporterTypeNone
	}
	if tc.ServiceName == "" {
		tc.ServiceName = c.Client.Name
	}
	return tc
}
