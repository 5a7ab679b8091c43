package manager

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ajitpratap0/mcp-fleet/pkg/client"
	"github.com/ajitpratap0/mcp-fleet/pkg/health"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
)

// maintain reconnects dropped providers every maintenanceInterval until
// ctx is done.
func (m *Manager) maintain(ctx context.Context) {
	ticker := time.NewTicker(m.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.maintenanceTick(ctx)
		}
	}
}

// maintenanceTick walks one snapshot. A provider that fails to reconnect
// is skipped on later ticks according to its own backoff.
func (m *Manager) maintenanceTick(ctx context.Context) {
	start := m.now()
	for _, p := range m.snapshot() {
		if ctx.Err() != nil {
			return
		}
		state := p.conn.State()
		if state != client.StateError && state != client.StateDisconnected {
			if p.retry != nil {
				p.retry.Reset()
				p.nextAttempt = time.Time{}
			}
			continue
		}
		if !m.isRegistered(p) || m.now().Before(p.nextAttempt) {
			continue
		}
		m.reconnect(ctx, p, state)
	}
	m.collector.RecordLatency("maintenance", m.now().Sub(start))
}

func (m *Manager) reconnect(ctx context.Context, p *provider, from client.State) {
	logger := m.logger.WithFields(
		logging.String("provider", p.name),
		logging.String("state", from.String()))

	if p.retry == nil {
		p.retry = backoff.NewExponentialBackOff()
		p.retry.InitialInterval = m.maintenanceInterval
		p.retry.MaxInterval = 16 * m.maintenanceInterval
		p.retry.MaxElapsedTime = 0
		p.retry.Reset()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, m.maintenanceInterval)
	defer cancel()

	if err := p.conn.Reconnect(attemptCtx); err != nil {
		wait := p.retry.NextBackOff()
		p.nextAttempt = m.now().Add(wait)
		m.monitor.UpdateClient(p.name, health.FromState(p.conn.State()))
		logger.Warn("provider reconnect failed",
			logging.Duration("retry_in", wait),
			logging.ErrorField(err))
		return
	}

	if !m.isRegistered(p) {
		_ = p.conn.Close()
		return
	}
	p.retry.Reset()
	p.nextAttempt = time.Time{}
	m.collector.RecordConnection(p.name)
	m.monitor.UpdateClient(p.name, health.StatusHealthy)
	logger.Info("provider reconnected", logging.Int("tools", len(p.conn.Tools())))
}
