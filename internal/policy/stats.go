package policy

import (
	"sync"
	"time"

	"github.com/famomatic/ytmirror/internal/metrics"
	"github.com/famomatic/ytmirror/internal/types"
)

// Stats counts backend outcomes for the lifetime of the process.
type Stats struct {
	mu   sync.Mutex
	data map[string]types.ApiStats
	now  func() time.Time
}

// NewStats pre-registers backends so snapshots list them before any attempt.
func NewStats(backends ...string) *Stats {
	s := &Stats{data: make(map[string]types.ApiStats, len(backends)), now: time.Now}
	for _, b := range backends {
		s.data[b] = types.ApiStats{}
	}
	return s
}

// WithClock overrides time.Now.
func (s *Stats) WithClock(now func() time.Time) *Stats {
	s.now = now
	return s
}

// Record adds one outcome for backend.
func (s *Stats) Record(backend string, ok bool, elapsed time.Duration) {
	s.mu.Lock()
	st := s.data[backend]
	if ok {
		st.Successes++
		st.LastSuccess = s.now()
	} else {
		st.Failures++
	}
	s.data[backend] = st
	s.mu.Unlock()
	metrics.RecordBackendAttempt(backend, ok, elapsed.Seconds())
}

// Get returns the counters of one backend.
func (s *Stats) Get(backend string) types.ApiStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[backend]
}

// Snapshot returns a copy of every counter.
func (s *Stats) Snapshot() types.ApiStatsData {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(types.ApiStatsData, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Reset zeroes every counter, keeping registered backends.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		s.data[k] = types.ApiStats{}
	}
}
