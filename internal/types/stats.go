package types

import "time"

// ApiStats are per-backend attempt counters.
type ApiStats struct {
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	LastSuccess time.Time `json:"lastSuccess"`
}

// Total returns the number of observed attempts.
func (s ApiStats) Total() int { return s.Successes + s.Failures }

// ApiStatsData is a snapshot keyed by backend identifier.
type ApiStatsData map[string]ApiStats
