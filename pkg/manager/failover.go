package manager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
)

// ExecutionPreferences tune one failover run
type ExecutionPreferences struct {
	// FailFast returns the first failure instead of trying the next
	// provider.
	FailFast bool
	// PreferredServers are tried first, in this order, when they offer
	// the tool.
	PreferredServers []string
	// Timeout bounds each attempt. Zero means DefaultToolTimeout.
	Timeout time.Duration
}

// DefaultExecutionPreferences tries every provider with a 30s timeout
func DefaultExecutionPreferences() ExecutionPreferences {
	return ExecutionPreferences{Timeout: DefaultToolTimeout}
}

// ExecuteToolWithFailover calls tool on the providers that offer it, in
// ranked order, until one succeeds. A failure that is not recoverable
// stops the run, as does any failure when prefs.FailFast is set. When all
// candidates fail the result is an AllProvidersFailed error wrapping each
// attempt's error.
func (m *Manager) ExecuteToolWithFailover(ctx context.Context, tool string, args interface{}, prefs ExecutionPreferences) (*protocol.CallToolResult, error) {
	ctx, span := m.tracer.Start(ctx, "mcp.failover",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("mcp.tool", tool)))
	defer span.End()

	result, tried, err := m.failover(ctx, tool, args, prefs)

	span.SetAttributes(
		attribute.Int("mcp.attempts", len(tried)),
		attribute.StringSlice("mcp.providers_tried", tried),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (m *Manager) failover(ctx context.Context, tool string, args interface{}, prefs ExecutionPreferences) (*protocol.CallToolResult, []string, error) {
	if prefs.Timeout <= 0 {
		prefs.Timeout = DefaultToolTimeout
	}

	providers := m.providersWithTool(tool)
	if len(providers) == 0 {
		return nil, nil, mcperrors.NoProviderForTool(tool)
	}

	candidates := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		candidates = append(candidates, m.candidate(tool, p.name))
	}
	ordered := preferFirst(m.ranking.Rank(tool, candidates), prefs.PreferredServers)

	byName := make(map[string]*provider, len(providers))
	for _, p := range providers {
		byName[p.name] = p
	}

	var (
		tried []string
		errs  []error
	)
	for _, c := range ordered {
		p, ok := byName[c.Name]
		if !ok {
			continue
		}
		// A policy may repeat a name; each provider gets one attempt.
		delete(byName, c.Name)

		tried = append(tried, p.name)
		result, err := m.invoke(ctx, p, tool, args, prefs.Timeout)
		if err == nil {
			return result, tried, nil
		}
		errs = append(errs, err)

		if !mcperrors.IsRecoverable(err) || prefs.FailFast {
			return nil, tried, err
		}
		m.logger.Warn("tool call failed, trying next provider",
			logging.String("tool", tool),
			logging.String("provider", p.name),
			logging.ErrorField(err))
	}

	return nil, tried, mcperrors.AllProvidersFailed(tool, tried, errs)
}

// providersWithTool snapshots the registry and keeps the providers whose
// cached inventory has tool.
func (m *Manager) providersWithTool(tool string) []*provider {
	var out []*provider
	for _, p := range m.snapshot() {
		if p.conn.HasTool(tool) {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) candidate(tool, name string) Candidate {
	stats, _ := m.collector.ToolStats(tool, name)
	return Candidate{
		Name:        name,
		Health:      m.monitor.Status(name),
		SuccessRate: stats.SuccessRate(),
		MeanLatency: stats.Latency.Mean,
		Executions:  stats.Executions,
	}
}

// invoke runs one tool call and records its outcome. A zero timeout
// leaves the connection's request timeout in charge.
func (m *Manager) invoke(ctx context.Context, p *provider, tool string, args interface{}, timeout time.Duration) (*protocol.CallToolResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := m.now()
	result, err := p.conn.CallTool(ctx, tool, args)
	latency := m.now().Sub(start)

	if err != nil {
		m.collector.RecordFailure(tool, p.name, latency, err)
		return nil, err
	}
	m.collector.RecordSuccess(tool, p.name, latency)
	return result, nil
}
