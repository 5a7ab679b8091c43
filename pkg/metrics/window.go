package metrics

import (
	"sort"
	"time"
)

// DefaultWindowSize is the number of samples a LatencyWindow keeps.
const DefaultWindowSize = 1000

// LatencySummary describes the samples currently in a window.
type LatencySummary struct {
	Count int           `json:"count"`
	Mean  time.Duration `json:"mean"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// LatencyWindow is a fixed-capacity ring of latency samples. The oldest
// sample is evicted once the window is full. It is not safe for concurrent
// use; Collector guards its windows.
type LatencyWindow struct {
	samples []time.Duration
	next    int
}

// NewLatencyWindow returns a window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &LatencyWindow{samples: make([]time.Duration, 0, size)}
}

// Add records one sample
func (w *LatencyWindow) Add(d time.Duration) {
	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, d)
		return
	}
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
}

// Len returns the number of samples held
func (w *LatencyWindow) Len() int { return len(w.samples) }

// Summary sorts a copy of the samples and reports mean and percentiles.
// The percentile index is len*p/100, clamped to the last sample.
func (w *LatencyWindow) Summary() LatencySummary {
	n := len(w.samples)
	if n == 0 {
		return LatencySummary{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, w.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return LatencySummary{
		Count: n,
		Mean:  total / time.Duration(n),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P95:   sorted[percentileIndex(n, 95)],
		P99:   sorted[percentileIndex(n, 99)],
	}
}

func percentileIndex(n, p int) int {
	i := n * p / 100
	if i > n-1 {
		i = n - 1
	}
	return i
}
