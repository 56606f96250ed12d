package policy

import (
	"sort"
	"time"
)

// RecencyWindow is how recent a success must be to earn the recency bonus.
const RecencyWindow = 5 * time.Minute

const (
	unobservedRate = 0.5
	recencyBonus   = 0.5
)

// Adaptive orders candidates by score descending; ties keep candidate order.
type Adaptive struct {
	stats      *Stats
	candidates []string
	now        func() time.Time
}

// NewAdaptive scores candidates from stats.
func NewAdaptive(stats *Stats, candidates []string) *Adaptive {
	return &Adaptive{stats: stats, candidates: append([]string(nil), candidates...), now: time.Now}
}

// WithClock overrides time.Now.
func (a *Adaptive) WithClock(now func() time.Time) *Adaptive {
	a.now = now
	return a
}

// Score returns successRate (0.5 when unobserved) plus 0.5 when the last
// success is within RecencyWindow.
func (a *Adaptive) Score(backend string) float64 {
	st := a.stats.Get(backend)
	rate := unobservedRate
	if total := st.Total(); total > 0 {
		rate = float64(st.Successes) / float64(total)
	}
	if !st.LastSuccess.IsZero() && a.now().Sub(st.LastSuccess) < RecencyWindow {
		rate += recencyBonus
	}
	return rate
}

func (a *Adaptive) Order() []string {
	scores := make(map[string]float64, len(a.candidates))
	for _, c := range a.candidates {
		scores[c] = a.Score(c)
	}
	out := append([]string(nil), a.candidates...)
	sort.SliceStable(out, func(i, j int) bool { return scores[out[i]] > scores[out[j]] })
	return out
}
