package manager

import (
	"sort"
	"time"

	"github.com/ajitpratap0/mcp-fleet/pkg/health"
)

// Candidate is a provider that offers the requested tool, together with
// the figures a RankingPolicy may order by.
type Candidate struct {
	Name        string
	Health      health.Status
	SuccessRate float64
	MeanLatency time.Duration
	Executions  int64
}

// RankingPolicy orders the candidates for one tool. Implementations must
// return a permutation of candidates and must not block.
type RankingPolicy interface {
	Rank(tool string, candidates []Candidate) []Candidate
}

// RankingFunc adapts a function to RankingPolicy
type RankingFunc func(tool string, candidates []Candidate) []Candidate

// Rank calls f
func (f RankingFunc) Rank(tool string, candidates []Candidate) []Candidate {
	return f(tool, candidates)
}

// ByName orders candidates lexically by provider name.
var ByName RankingPolicy = RankingFunc(func(_ string, candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
})

// ByHealthAndLatency prefers healthy providers, then higher success
// rates, then lower mean latency. Providers that were never probed rank
// between healthy and degraded ones. Ties are broken by name.
var ByHealthAndLatency RankingPolicy = RankingFunc(func(_ string, candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := healthRank(a.Health), healthRank(b.Health); ra != rb {
			return ra < rb
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.MeanLatency != b.MeanLatency {
			return a.MeanLatency < b.MeanLatency
		}
		return a.Name < b.Name
	})
	return out
})

func healthRank(s health.Status) int {
	switch s {
	case health.StatusHealthy:
		return 0
	case health.StatusUnknown:
		return 1
	case health.StatusDegraded:
		return 2
	default:
		return 3
	}
}

// preferFirst moves the preferred providers to the front in the order
// given, keeping the relative order of the rest.
func preferFirst(ranked []Candidate, preferred []string) []Candidate {
	if len(preferred) == 0 {
		return ranked
	}

	byName := make(map[string]Candidate, len(ranked))
	for _, c := range ranked {
		byName[c.Name] = c
	}

	out := make([]Candidate, 0, len(ranked))
	taken := make(map[string]bool, len(preferred))
	for _, name := range preferred {
		c, ok := byName[name]
		if !ok || taken[name] {
			continue
		}
		out = append(out, c)
		taken[name] = true
	}
	for _, c := range ranked {
		if !taken[c.Name] {
			out = append(out, c)
		}
	}
	return out
}
