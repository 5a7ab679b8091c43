// Package manager runs a fleet of MCP providers behind one API.
//
// A Manager owns one client.Connection per named provider. Tool calls are
// routed to the providers whose cached inventory contains the tool and are
// tried sequentially in ranked order until one succeeds. Background loops
// keep the health monitor current and reconnect providers that dropped.
package manager

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/health"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/metrics"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
	"github.com/ajitpratap0/mcp-fleet/pkg/transport"
)

const tracerName = "github.com/ajitpratap0/mcp-fleet/pkg/manager"

type provider struct {
	name   string
	conn   *client.Connection
	config transport.Config

	// Touched only by the maintenance loop.
	retry       *backoff.ExponentialBackOff
	nextAttempt time.Time
}

// Manager is safe for concurrent use
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*provider
	closed    bool

	logger              logging.Logger
	tracer              trace.Tracer
	ranking             RankingPolicy
	healthInterval      time.Duration
	maintenanceInterval time.Duration
	connectRetries      int
	connectBackoff      time.Duration
	clientOptions       []client.Option
	metricsOptions      []metrics.Option
	healthOptions       []health.Option

	collector *metrics.Collector
	monitor   *health.Monitor

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loops      *errgroup.Group

	now func() time.Time
}

// New creates a manager with no providers
func New(options ...Option) *Manager {
	m := &Manager{
		providers:           make(map[string]*provider),
		logger:              logging.Default(),
		ranking:             ByHealthAndLatency,
		healthInterval:      DefaultHealthCheckInterval,
		maintenanceInterval: DefaultMaintenanceInterval,
		connectRetries:      DefaultConnectRetries,
		connectBackoff:      DefaultConnectBackoff,
		now:                 time.Now,
	}
	for _, option := range options {
		option(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	m.logger = m.logger.WithFields(logging.String("component", "manager"))
	m.collector = metrics.NewCollector(m.metricsOptions...)
	m.monitor = health.NewMonitor(append([]health.Option{health.WithLogger(m.logger)}, m.healthOptions...)...)
	return m
}

// ConnectServer registers a provider and connects it. Failed attempts are
// retried with exponential backoff unless the error is not recoverable.
// When every attempt fails the provider is unregistered again.
func (m *Manager) ConnectServer(ctx context.Context, name string, config transport.Config) error {
	if name == "" {
		return mcperrors.InvalidConfig("name", "must not be empty")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	p := &provider{
		name:   name,
		conn:   client.New(name, config, m.connectionOptions(config)...),
		config: config,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return mcperrors.ProviderUnavailable(name, "manager is shut down")
	}
	if _, exists := m.providers[name]; exists {
		m.mu.Unlock()
		return mcperrors.DuplicateProvider(name)
	}
	m.providers[name] = p
	m.mu.Unlock()

	start := m.now()
	if err := m.connectWithRetry(ctx, p); err != nil {
		m.mu.Lock()
		if m.providers[name] == p {
			delete(m.providers, name)
		}
		m.mu.Unlock()
		_ = p.conn.Close()
		m.monitor.Remove(name)
		return err
	}

	m.collector.RecordLatency("connect", m.now().Sub(start))
	m.collector.RecordConnection(name)
	m.monitor.UpdateClient(name, health.FromState(p.conn.State()))
	return nil
}

func (m *Manager) connectionOptions(config transport.Config) []client.Option {
	var options []client.Option
	if config.Logger == nil {
		options = append(options, client.WithLogger(m.logger))
	}
	if config.Tracer == nil {
		options = append(options, client.WithTracer(m.tracer))
	}
	return append(options, m.clientOptions...)
}

func (m *Manager) connectWithRetry(ctx context.Context, p *provider) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.connectBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		if !m.isRegistered(p) {
			return backoff.Permanent(mcperrors.UnknownProvider(p.name))
		}
		attempt++
		err := p.conn.Connect(ctx)
		if err != nil && !mcperrors.IsRecoverable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		m.logger.Warn("provider connect failed, retrying",
			logging.String("provider", p.name),
			logging.Int("attempt", attempt),
			logging.Duration("next", next),
			logging.ErrorField(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.connectRetries)), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

func (m *Manager) isRegistered(p *provider) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[p.name] == p
}

// DisconnectServer closes and unregisters a provider
func (m *Manager) DisconnectServer(name string) error {
	m.mu.Lock()
	p, ok := m.providers[name]
	if ok {
		delete(m.providers, name)
	}
	m.mu.Unlock()

	if !ok {
		return mcperrors.UnknownProvider(name)
	}
	return m.closeProvider(p)
}

func (m *Manager) closeProvider(p *provider) error {
	err := p.conn.Close()
	m.monitor.Remove(p.name)
	m.collector.RecordDisconnection(p.name)
	return err
}

// snapshot copies the provider list so no lock is held during I/O.
func (m *Manager) snapshot() []*provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*provider, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (m *Manager) lookup(name string) (*provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	if !ok {
		return nil, mcperrors.UnknownProvider(name)
	}
	return p, nil
}

// ListServers returns the registered provider names, sorted
func (m *Manager) ListServers() []string {
	providers := m.snapshot()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.name
	}
	return names
}

// Connection returns the connection of a provider
func (m *Manager) Connection(name string) (*client.Connection, error) {
	p, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return p.conn, nil
}

// ConnectionStatus returns the state of every provider
func (m *Manager) ConnectionStatus() map[string]client.State {
	status := make(map[string]client.State)
	for _, p := range m.snapshot() {
		status[p.name] = p.conn.State()
	}
	return status
}

// FindServersWithTool returns the providers whose cached inventory holds
// tool, sorted by name.
func (m *Manager) FindServersWithTool(tool string) []string {
	var names []string
	for _, p := range m.snapshot() {
		if p.conn.HasTool(tool) {
			names = append(names, p.name)
		}
	}
	return names
}

// GetAllTools returns each provider's cached tools. Providers without
// tools are omitted.
func (m *Manager) GetAllTools() map[string][]protocol.Tool {
	all := make(map[string][]protocol.Tool)
	for _, p := range m.snapshot() {
		if tools := p.conn.Tools(); len(tools) > 0 {
			all[p.name] = tools
		}
	}
	return all
}

// CallTool invokes tool on one named provider without failover.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args interface{}) (*protocol.CallToolResult, error) {
	p, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	if p.conn.IsConnected() && !p.conn.HasTool(tool) {
		return nil, mcperrors.ToolExecutionFailed(tool, server, "tool is not offered by this provider", false)
	}
	return m.invoke(ctx, p, tool, args, 0)
}

// ReadResource reads uri from one named provider
func (m *Manager) ReadResource(ctx context.Context, server, uri string) (json.RawMessage, error) {
	p, err := m.lookup(server)
	if err != nil {
		return nil, err
	}
	start := m.now()
	raw, err := p.conn.ReadResource(ctx, uri)
	m.collector.RecordLatency("resources/read", m.now().Sub(start))
	return raw, err
}

// GetMetrics returns a copy of the collected statistics
func (m *Manager) GetMetrics() metrics.Snapshot {
	return m.collector.Snapshot()
}

// HealthReport returns the monitor's current report
func (m *Manager) HealthReport() health.Report {
	return m.monitor.Report()
}

// ProviderStates implements health.Source
func (m *Manager) ProviderStates() []health.ProviderState {
	providers := m.snapshot()
	states := make([]health.ProviderState, len(providers))
	for i, p := range providers {
		states[i] = health.ProviderState{
			Name:               p.name,
			State:              p.conn.State(),
			ToolCount:          len(p.conn.Tools()),
			TransportConnected: p.conn.TransportConnected(),
		}
	}
	return states
}

// Start runs the health and maintenance loops until Shutdown or until ctx
// is done. Calling Start again while the loops run has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.loops != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.loopCancel = cancel
	m.loops = &errgroup.Group{}

	m.loops.Go(func() error {
		m.monitor.Run(loopCtx, m.healthInterval, m)
		return nil
	})
	m.loops.Go(func() error {
		m.maintain(loopCtx)
		return nil
	})

	m.logger.Info("manager started",
		logging.Duration("health_interval", m.healthInterval),
		logging.Duration("maintenance_interval", m.maintenanceInterval))
}

func (m *Manager) stopLoops() {
	m.loopMu.Lock()
	cancel, loops := m.loopCancel, m.loops
	m.loopCancel, m.loops = nil, nil
	m.loopMu.Unlock()

	if cancel != nil {
		cancel()
		_ = loops.Wait()
	}
}

// Shutdown stops the loops and closes every provider concurrently. The
// manager rejects new providers afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopLoops()

	m.mu.Lock()
	m.closed = true
	providers := make([]*provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.providers = make(map[string]*provider)
	m.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
		g     errgroup.Group
	)
	for _, p := range providers {
		g.Go(func() error {
			if err := m.closeProvider(p); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return mcperrors.OperationCancelled("shutdown")
	}

	m.logger.Info("manager shut down", logging.Int("providers", len(providers)))
	if err := mcperrors.CombineErrors(errs); err != nil {
		return err
	}
	return nil
}

// ApplyConfig reconciles the fleet with servers: missing providers are
// disconnected, new ones connected and changed ones reconnected. Every
// change is attempted; the errors are combined.
func (m *Manager) ApplyConfig(ctx context.Context, servers map[string]transport.Config) error {
	current := make(map[string]transport.Config)
	for _, p := range m.snapshot() {
		current[p.name] = p.config
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	record := func(err error) {
		if err != nil {
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(applyConcurrency)

	for name := range current {
		if _, keep := servers[name]; !keep {
			g.Go(func() error {
				m.logger.Info("removing provider", logging.String("provider", name))
				record(m.DisconnectServer(name))
				m.collector.Forget(name)
				return nil
			})
		}
	}

	for name, cfg := range servers {
		old, exists := current[name]
		switch {
		case !exists:
			g.Go(func() error {
				m.logger.Info("adding provider", logging.String("provider", name))
				record(m.ConnectServer(gctx, name, cfg))
				return nil
			})
		case !sameConfig(old, cfg):
			g.Go(func() error {
				m.logger.Info("provider config changed, reconnecting", logging.String("provider", name))
				if err := m.DisconnectServer(name); err != nil && !mcperrors.IsCode(err, mcperrors.CodeUnknownProvider) {
					record(err)
				}
				record(m.ConnectServer(gctx, name, cfg))
				return nil
			})
		}
	}

	_ = g.Wait()
	if err := mcperrors.CombineErrors(errs); err != nil {
		return err
	}
	return nil
}

// sameConfig compares the serializable parts of two configs.
func sameConfig(a, b transport.Config) bool {
	a.Logger, a.Tracer = nil, nil
	b.Logger, b.Tracer = nil, nil
	return reflect.DeepEqual(a, b)
}
