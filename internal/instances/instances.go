// Package instances remembers which hosts of a backend family answered
// recently so the next walk tries them first.
package instances

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/store"
)

const (
	DefaultCap          = 8
	InvidiousTTL        = 10 * time.Minute
	PipedTTL            = 5 * time.Minute
	keySuffixWorking    = "_working_instances"
	keySuffixLastUpdate = "_instance_update"
)

// TTLFor returns the built-in expiry of a backend family.
func TTLFor(backend string) time.Duration {
	if backend == "piped" {
		return PipedTTL
	}
	return InvidiousTTL
}

// Config configures a Memory.
type Config struct {
	Backend string
	TTL     time.Duration
	Cap     int
	Store   store.Store
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Memory is a bounded move-to-front list of working hosts, persisted as
// "<backend>_working_instances" plus a millisecond "<backend>_instance_update".
type Memory struct {
	backend string
	ttl     time.Duration
	cap     int
	store   store.Store
	logger  zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	working    []string
	lastUpdate time.Time
}

// New loads persisted state for cfg.Backend.
func New(ctx context.Context, cfg Config) *Memory {
	m := &Memory{
		backend: cfg.Backend,
		ttl:     cfg.TTL,
		cap:     cfg.Cap,
		store:   cfg.Store,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if m.ttl <= 0 {
		m.ttl = TTLFor(cfg.Backend)
	}
	if m.cap <= 0 {
		m.cap = DefaultCap
	}
	if m.store == nil {
		m.store = store.NewMemory()
	}
	if m.now == nil {
		m.now = time.Now
	}
	store.GetJSON(ctx, m.store, m.workingKey(), &m.working)
	m.lastUpdate = store.GetTime(ctx, m.store, m.updateKey())
	return m
}

func (m *Memory) workingKey() string { return m.backend + keySuffixWorking }
func (m *Memory) updateKey() string  { return m.backend + keySuffixLastUpdate }

// Backend returns the backend family name.
func (m *Memory) Backend() string { return m.backend }

// Promote moves host to the front of the working list.
func (m *Memory) Promote(ctx context.Context, host string) {
	if host == "" {
		return
	}
	m.mu.Lock()
	next := make([]string, 0, len(m.working)+1)
	next = append(next, host)
	for _, h := range m.working {
		if h != host {
			next = append(next, h)
		}
	}
	if len(next) > m.cap {
		next = next[:m.cap]
	}
	m.working = next
	m.lastUpdate = m.now()
	snapshot := append([]string(nil), next...)
	ts := m.lastUpdate
	m.mu.Unlock()

	m.persist(ctx, snapshot, ts)
}

// Working returns the current working hosts after applying expiry.
func (m *Memory) Working(ctx context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked(ctx)
	return append([]string(nil), m.working...)
}

// Ordered returns working hosts first, then the remaining entries of all in
// their given order.
func (m *Memory) Ordered(ctx context.Context, all []string) []string {
	working := m.Working(ctx)
	seen := make(map[string]struct{}, len(working))
	out := make([]string, 0, len(all)+len(working))
	for _, h := range working {
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, h := range all {
		if _, ok := seen[h]; ok {
			continue
		}
		out = append(out, h)
	}
	return out
}

// refreshLocked resets an expired list, or reloads one updated elsewhere.
func (m *Memory) refreshLocked(ctx context.Context) {
	stored := store.GetTime(ctx, m.store, m.updateKey())
	now := m.now()
	switch {
	case now.Sub(stored) > m.ttl:
		if len(m.working) > 0 {
			m.logger.Debug().Str("backend", m.backend).Msg("working instances expired")
		}
		m.working = nil
		m.lastUpdate = now
		m.persistLocked(ctx, nil, now)
	case stored.After(m.lastUpdate):
		var list []string
		if store.GetJSON(ctx, m.store, m.workingKey(), &list) {
			m.working = list
		}
		m.lastUpdate = stored
	}
}

func (m *Memory) persist(ctx context.Context, list []string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked(ctx, list, ts)
}

func (m *Memory) persistLocked(ctx context.Context, list []string, ts time.Time) {
	if list == nil {
		list = []string{}
	}
	if err := store.SetJSON(ctx, m.store, m.workingKey(), list); err != nil {
		m.logger.Warn().Err(err).Str("backend", m.backend).Msg("persist working instances")
		return
	}
	if err := store.SetTime(ctx, m.store, m.updateKey(), ts); err != nil {
		m.logger.Warn().Err(err).Str("backend", m.backend).Msg("persist working instances timestamp")
	}
}
