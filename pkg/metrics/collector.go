// Package metrics aggregates tool execution and connection statistics for
// a provider fleet.
//
// Collector keeps per (tool, provider) counters and bounded latency
// windows, per-operation latency windows, and connection counters. An
// optional Sink receives every event, which is how the Prometheus exporter
// in pkg/observability is fed.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Sink receives every event recorded by a Collector. Calls are made after
// the collector's lock is released.
type Sink interface {
	ObserveToolCall(tool, provider string, latency time.Duration, err error)
	ObserveOperation(operation string, latency time.Duration)
	ObserveConnection(provider string, connected bool)
}

// ToolStats are the statistics of one tool on one provider.
type ToolStats struct {
	Tool         string         `json:"tool"`
	Provider     string         `json:"provider"`
	Executions   int64          `json:"executions"`
	Successes    int64          `json:"successes"`
	Failures     int64          `json:"failures"`
	LastError    string         `json:"last_error,omitempty"`
	LastExecuted time.Time      `json:"last_executed"`
	Latency      LatencySummary `json:"latency"`
}

// SuccessRate returns successes/executions, or 1 when nothing ran yet so
// untried providers are not ranked below failing ones.
func (s ToolStats) SuccessRate() float64 {
	if s.Executions == 0 {
		return 1
	}
	return float64(s.Successes) / float64(s.Executions)
}

// ConnectionStats counts connection transitions of one provider.
type ConnectionStats struct {
	Connects    int64     `json:"connects"`
	Disconnects int64     `json:"disconnects"`
	Connected   bool      `json:"connected"`
	LastChange  time.Time `json:"last_change"`
}

// Snapshot is a deep copy of the collector's state.
type Snapshot struct {
	Tools           []ToolStats                `json:"tools"`
	Operations      map[string]LatencySummary  `json:"operations"`
	Connections     map[string]ConnectionStats `json:"connections"`
	TotalExecutions int64                      `json:"total_executions"`
	TotalFailures   int64                      `json:"total_failures"`
	Uptime          time.Duration              `json:"uptime"`
	TakenAt         time.Time                  `json:"taken_at"`
}

type toolKey struct {
	tool     string
	provider string
}

type toolEntry struct {
	stats  ToolStats
	window *LatencyWindow
}

// Collector is safe for concurrent use.
type Collector struct {
	mu          sync.RWMutex
	windowSize  int
	tools       map[toolKey]*toolEntry
	operations  map[string]*LatencyWindow
	connections map[string]*ConnectionStats
	started     time.Time
	sink        Sink
	now         func() time.Time
}

// Option configures a Collector
type Option func(*Collector)

// WithWindowSize sets the latency window capacity
func WithWindowSize(size int) Option {
	return func(c *Collector) {
		if size > 0 {
			c.windowSize = size
		}
	}
}

// WithSink forwards every event to sink
func WithSink(sink Sink) Option {
	return func(c *Collector) {
		c.sink = sink
	}
}

// NewCollector creates an empty collector
func NewCollector(options ...Option) *Collector {
	c := &Collector{
		windowSize:  DefaultWindowSize,
		tools:       make(map[toolKey]*toolEntry),
		operations:  make(map[string]*LatencyWindow),
		connections: make(map[string]*ConnectionStats),
		now:         time.Now,
	}
	for _, option := range options {
		option(c)
	}
	c.started = c.now()
	return c
}

func (c *Collector) toolEntryLocked(tool, provider string) *toolEntry {
	key := toolKey{tool: tool, provider: provider}
	e, ok := c.tools[key]
	if !ok {
		e = &toolEntry{
			stats:  ToolStats{Tool: tool, Provider: provider},
			window: NewLatencyWindow(c.windowSize),
		}
		c.tools[key] = e
	}
	return e
}

// RecordSuccess records a successful tool execution
func (c *Collector) RecordSuccess(tool, provider string, latency time.Duration) {
	c.mu.Lock()
	e := c.toolEntryLocked(tool, provider)
	e.stats.Executions++
	e.stats.Successes++
	e.stats.LastExecuted = c.now()
	e.window.Add(latency)
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.ObserveToolCall(tool, provider, latency, nil)
	}
}

// RecordFailure records a failed tool execution
func (c *Collector) RecordFailure(tool, provider string, latency time.Duration, err error) {
	c.mu.Lock()
	e := c.toolEntryLocked(tool, provider)
	e.stats.Executions++
	e.stats.Failures++
	e.stats.LastExecuted = c.now()
	if err != nil {
		e.stats.LastError = err.Error()
	}
	e.window.Add(latency)
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.ObserveToolCall(tool, provider, latency, err)
	}
}

// RecordLatency records the duration of a named operation such as a
// connect or a health sweep.
func (c *Collector) RecordLatency(operation string, d time.Duration) {
	c.mu.Lock()
	w, ok := c.operations[operation]
	if !ok {
		w = NewLatencyWindow(c.windowSize)
		c.operations[operation] = w
	}
	w.Add(d)
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.ObserveOperation(operation, d)
	}
}

// RecordConnection records that provider connected
func (c *Collector) RecordConnection(provider string) {
	c.recordConnectionChange(provider, true)
}

// RecordDisconnection records that provider disconnected
func (c *Collector) RecordDisconnection(provider string) {
	c.recordConnectionChange(provider, false)
}

func (c *Collector) recordConnectionChange(provider string, connected bool) {
	c.mu.Lock()
	s, ok := c.connections[provider]
	if !ok {
		s = &ConnectionStats{}
		c.connections[provider] = s
	}
	if connected {
		s.Connects++
	} else {
		s.Disconnects++
	}
	s.Connected = connected
	s.LastChange = c.now()
	c.mu.Unlock()

	if c.sink != nil {
		c.sink.ObserveConnection(provider, connected)
	}
}

// ToolStats returns the statistics for tool on provider.
func (c *Collector) ToolStats(tool, provider string) (ToolStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.tools[toolKey{tool: tool, provider: provider}]
	if !ok {
		return ToolStats{Tool: tool, Provider: provider}, false
	}
	stats := e.stats
	stats.Latency = e.window.Summary()
	return stats, true
}

// Forget drops every statistic recorded for provider.
func (c *Collector) Forget(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tools {
		if key.provider == provider {
			delete(c.tools, key)
		}
	}
	delete(c.connections, provider)
}

// Snapshot returns a deep copy. Tool stats are ordered by tool, then
// provider.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	snap := Snapshot{
		Tools:       make([]ToolStats, 0, len(c.tools)),
		Operations:  make(map[string]LatencySummary, len(c.operations)),
		Connections: make(map[string]ConnectionStats, len(c.connections)),
		Uptime:      now.Sub(c.started),
		TakenAt:     now,
	}

	for _, e := range c.tools {
		stats := e.stats
		stats.Latency = e.window.Summary()
		snap.Tools = append(snap.Tools, stats)
		snap.TotalExecutions += stats.Executions
		snap.TotalFailures += stats.Failures
	}
	sort.Slice(snap.Tools, func(i, j int) bool {
		if snap.Tools[i].Tool != snap.Tools[j].Tool {
			return snap.Tools[i].Tool < snap.Tools[j].Tool
		}
		return snap.Tools[i].Provider < snap.Tools[j].Provider
	})

	for name, w := range c.operations {
		snap.Operations[name] = w.Summary()
	}
	for name, s := range c.connections {
		snap.Connections[name] = *s
	}
	return snap
}
