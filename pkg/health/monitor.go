package health

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

const (
	// DefaultInterval is the polling period used when Run is given zero
	DefaultInterval = 30 * time.Second

	defaultCheckTimeout = 10 * time.Second
)

// ProviderState is what a sweep needs to know about one provider.
type ProviderState struct {
	Name               string
	State              client.State
	ToolCount          int
	TransportConnected bool
}

// Source returns a snapshot of the fleet. Implementations must not hold
// locks after returning.
type Source interface {
	ProviderStates() []ProviderState
}

// SourceFunc adapts a function to Source
type SourceFunc func() []ProviderState

// ProviderStates calls f
func (f SourceFunc) ProviderStates() []ProviderState { return f() }

// Check is an additional probe run on every sweep. A failing critical
// check makes the fleet unhealthy; any other failure degrades it.
type Check interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) error
}

// CheckResult is the outcome of the last run of a Check
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report is a point-in-time copy of the monitor's state
type Report struct {
	Overall    Status                 `json:"overall"`
	Clients    map[string]Status      `json:"clients"`
	Servers    map[string]Status      `json:"servers"`
	Transports map[string]Status      `json:"transports"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Tools      map[string]int         `json:"tools,omitempty"`
	LastCheck  time.Time              `json:"last_check"`
	CheckCount uint64                 `json:"check_count"`
	Uptime     time.Duration          `json:"uptime"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Monitor is safe for concurrent use
type Monitor struct {
	mu         sync.RWMutex
	clients    map[string]Status
	servers    map[string]Status
	transports map[string]Status
	results    map[string]CheckResult
	tools      map[string]int
	lastCheck  time.Time
	checkCount uint64

	checks       []Check
	checkTimeout time.Duration
	logger       logging.Logger
	started      time.Time
	now          func() time.Time
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the logger used for status transitions
func WithLogger(logger logging.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithCheck adds a probe run on every sweep
func WithCheck(check Check) Option {
	return func(m *Monitor) {
		m.checks = append(m.checks, check)
	}
}

// WithCheckTimeout bounds each probe. The default is 10s.
func WithCheckTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.checkTimeout = d
		}
	}
}

// NewMonitor creates an empty monitor
func NewMonitor(options ...Option) *Monitor {
	m := &Monitor{
		clients:      make(map[string]Status),
		servers:      make(map[string]Status),
		transports:   make(map[string]Status),
		results:      make(map[string]CheckResult),
		tools:        make(map[string]int),
		checkTimeout: defaultCheckTimeout,
		logger:       logging.Default(),
		now:          time.Now,
	}
	for _, option := range options {
		option(m)
	}
	m.started = m.now()
	return m
}

// UpdateClient sets the client-domain status of a provider
func (m *Monitor) UpdateClient(name string, status Status) {
	m.update(m.clients, "client", name, status)
}

// UpdateServer sets the server-domain status of a provider
func (m *Monitor) UpdateServer(name string, status Status) {
	m.update(m.servers, "server", name, status)
}

// UpdateTransport sets the transport-domain status of a provider
func (m *Monitor) UpdateTransport(name string, status Status) {
	m.update(m.transports, "transport", name, status)
}

func (m *Monitor) update(domain map[string]Status, domainName, name string, status Status) {
	m.mu.Lock()
	prev, existed := domain[name]
	domain[name] = status
	m.mu.Unlock()

	if existed && prev != status {
		m.logger.Info("provider health changed",
			logging.String("provider", name),
			logging.String("domain", domainName),
			logging.String("from", prev.String()),
			logging.String("to", status.String()))
	}
}

// Remove forgets a provider in every domain
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, name)
	delete(m.servers, name)
	delete(m.transports, name)
	delete(m.tools, name)
}

// Status returns the worst status of one provider across the domains
func (m *Monitor) Status(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := StatusUnknown
	for _, domain := range []map[string]Status{m.clients, m.servers, m.transports} {
		if s, ok := domain[name]; ok {
			status = Worst(status, s)
		}
	}
	return status
}

// Overall returns the worst status across all entries, or StatusUnknown
// when nothing has been recorded.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallLocked()
}

func (m *Monitor) overallLocked() Status {
	overall := StatusUnknown
	for _, domain := range []map[string]Status{m.clients, m.servers, m.transports} {
		for _, s := range domain {
			overall = Worst(overall, s)
		}
	}
	for _, r := range m.results {
		overall = Worst(overall, r.Status)
	}
	return overall
}

// Report returns copies of every map
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	r := Report{
		Overall:    m.overallLocked(),
		Clients:    copyStatuses(m.clients),
		Servers:    copyStatuses(m.servers),
		Transports: copyStatuses(m.transports),
		LastCheck:  m.lastCheck,
		CheckCount: m.checkCount,
		Uptime:     now.Sub(m.started),
		Timestamp:  now,
	}
	if len(m.tools) > 0 {
		r.Tools = make(map[string]int, len(m.tools))
		for name, n := range m.tools {
			r.Tools[name] = n
		}
	}
	if len(m.results) > 0 {
		r.Checks = make(map[string]CheckResult, len(m.results))
		for name, result := range m.results {
			r.Checks[name] = result
		}
	}
	return r
}

// Sweep updates every domain from one snapshot of source and runs the
// registered checks. Providers absent from the snapshot are removed.
func (m *Monitor) Sweep(ctx context.Context, source Source) {
	states := source.ProviderStates()

	seen := make(map[string]struct{}, len(states))
	for _, ps := range states {
		seen[ps.Name] = struct{}{}

		m.UpdateClient(ps.Name, FromState(ps.State))
		m.UpdateServer(ps.Name, serverStatus(ps))

		transport := StatusUnhealthy
		if ps.TransportConnected {
			transport = StatusHealthy
		}
		m.UpdateTransport(ps.Name, transport)
	}

	results := m.runChecks(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, domain := range []map[string]Status{m.clients, m.servers, m.transports} {
		for name := range domain {
			if _, ok := seen[name]; !ok {
				delete(domain, name)
			}
		}
	}
	clear(m.tools)
	for _, ps := range states {
		m.tools[ps.Name] = ps.ToolCount
	}
	for name, result := range results {
		m.results[name] = result
	}
	m.lastCheck = m.now()
	m.checkCount++
}

// serverStatus reflects whether the provider completed its handshake. An
// empty tool inventory is not a fault; it shows up in Report.Tools.
func serverStatus(ps ProviderState) Status {
	if ps.State != client.StateConnected {
		return StatusUnhealthy
	}
	return StatusHealthy
}

func (m *Monitor) runChecks(ctx context.Context) map[string]CheckResult {
	if len(m.checks) == 0 {
		return nil
	}

	results := make(map[string]CheckResult, len(m.checks))
	for _, check := range m.checks {
		checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		start := m.now()
		err := check.Check(checkCtx)
		cancel()

		result := CheckResult{
			Status:    StatusHealthy,
			Duration:  m.now().Sub(start),
			Timestamp: start,
		}
		if err != nil {
			result.Status = StatusDegraded
			if check.Critical() {
				result.Status = StatusUnhealthy
			}
			result.Message = err.Error()
			m.logger.Warn("health check failed",
				logging.String("check", check.Name()),
				logging.Bool("critical", check.Critical()),
				logging.ErrorField(err))
		}
		results[check.Name()] = result
	}
	return results
}

// Run sweeps immediately and then every interval until ctx is done. The
// monitor holds only the source reference between ticks.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, source Source) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.Sweep(ctx, source)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx, source)
		}
	}
}

func copyStatuses(src map[string]Status) map[string]Status {
	dst := make(map[string]Status, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
