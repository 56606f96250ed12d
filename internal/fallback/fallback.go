// Package fallback tracks which player a watch session should use and
// walks a fixed player order as players keep failing.
package fallback

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/metrics"
)

// Player identifies one playback strategy.
type Player string

const (
	PlayerEdu       Player = "edu"
	PlayerYtdlp     Player = "ytdlp"
	PlayerInvidious Player = "invidious"
	PlayerNocookie  Player = "nocookie"
)

// Order is the fixed fallback order.
var Order = []Player{PlayerEdu, PlayerYtdlp, PlayerInvidious, PlayerNocookie}

const (
	// MaxRetries is how many errors a player absorbs before it is marked failed.
	MaxRetries = 2
	// DefaultInitial is the player a session starts on.
	DefaultInitial = PlayerYtdlp
)

// ErrAllPlayersFailed is the terminal state: every player has failed.
var ErrAllPlayersFailed = errors.New("all players failed")

// Valid reports whether p is one of the known players.
func (p Player) Valid() bool {
	for _, o := range Order {
		if o == p {
			return true
		}
	}
	return false
}

// State is a snapshot of the machine.
type State struct {
	Current      Player         `json:"current"`
	Failed       []Player       `json:"failed"`
	Retries      map[Player]int `json:"retries"`
	AutoFallback bool           `json:"autoFallback"`
	LastError    string         `json:"lastError,omitempty"`
	AllFailed    bool           `json:"allFailed"`
}

// Transition describes the effect of one error report.
type Transition struct {
	From Player
	To   Player
	// Retry is set when the caller should re-attempt the same player.
	Retry bool
	// Ignored is set for reports about a player that is no longer current.
	Ignored bool
}

// Switched reports whether the current player changed.
func (t Transition) Switched() bool { return !t.Ignored && !t.Retry && t.From != t.To }

// Option configures a Machine.
type Option func(*Machine)

// WithInitial sets the starting player.
func WithInitial(p Player) Option {
	return func(m *Machine) {
		if p.Valid() {
			m.initial = p
		}
	}
}

// WithMaxRetries overrides MaxRetries.
func WithMaxRetries(n int) Option {
	return func(m *Machine) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

// WithNotify registers a callback for transitions produced by ErrorAfter.
func WithNotify(fn func(Transition, error)) Option {
	return func(m *Machine) { m.notify = fn }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Machine is safe for concurrent use.
type Machine struct {
	initial    Player
	maxRetries int
	notify     func(Transition, error)
	logger     zerolog.Logger

	mu        sync.Mutex
	current   Player
	failed    map[Player]bool
	retries   map[Player]int
	auto      bool
	lastError string
	allFailed bool
	pending   *time.Timer
	closed    bool
}

func New(opts ...Option) *Machine {
	m := &Machine{
		initial:    DefaultInitial,
		maxRetries: MaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.resetLocked()
	return m
}

func (m *Machine) resetLocked() {
	m.current = m.initial
	m.failed = make(map[Player]bool, len(Order))
	m.retries = make(map[Player]int, len(Order))
	m.auto = false
	m.lastError = ""
	m.allFailed = false
}

// Current returns the active player.
func (m *Machine) Current() Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Error records a failure of player. Below the retry budget the player is
// kept; past it the player is marked failed and the first non-failed player
// in Order becomes current. ErrAllPlayersFailed is returned once no player
// is left.
func (m *Machine) Error(player Player, msg string) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorLocked(player, msg)
}

func (m *Machine) errorLocked(player Player, msg string) (Transition, error) {
	t := Transition{From: m.current, To: m.current}
	if m.allFailed {
		return t, ErrAllPlayersFailed
	}
	if player != m.current {
		t.Ignored = true
		return t, nil
	}
	m.lastError = msg

	if m.retries[player] < m.maxRetries {
		m.retries[player]++
		t.Retry = true
		m.logger.Debug().Str("player", string(player)).Int("retry", m.retries[player]).Str("error", msg).Msg("player error, retrying")
		return t, nil
	}

	m.failed[player] = true
	next, ok := m.firstAvailableLocked()
	if !ok {
		m.allFailed = true
		metrics.RecordPlayerTransition(string(player), "all_failed")
		m.logger.Warn().Str("player", string(player)).Msg("all players failed")
		return t, ErrAllPlayersFailed
	}
	m.current = next
	m.auto = true
	t.To = next
	metrics.RecordPlayerTransition(string(player), string(next))
	m.logger.Info().Str("from", string(player)).Str("to", string(next)).Str("error", msg).Msg("player fallback")
	return t, nil
}

func (m *Machine) firstAvailableLocked() (Player, bool) {
	for _, p := range Order {
		if !m.failed[p] {
			return p, true
		}
	}
	return "", false
}

// ErrorAfter reports an error once delay has passed without another
// ErrorAfter call. Only the last scheduled report is applied; its outcome
// goes to the WithNotify callback.
func (m *Machine) ErrorAfter(player Player, msg string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.pending != nil {
		m.pending.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed || m.pending != timer {
			m.mu.Unlock()
			return
		}
		m.pending = nil
		t, err := m.errorLocked(player, msg)
		notify := m.notify
		m.mu.Unlock()
		if notify != nil {
			notify(t, err)
		}
	})
	m.pending = timer
}

// Success clears the retry counter of player and the auto-fallback flag.
func (m *Machine) Success(player Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retries, player)
	m.auto = false
	m.lastError = ""
}

// Switch forces player to be current regardless of its failed mark, which
// is kept.
func (m *Machine) Switch(player Player) bool {
	if !player.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != player {
		metrics.RecordPlayerTransition(string(m.current), string(player))
	}
	m.current = player
	m.auto = false
	m.allFailed = false
	return true
}

// Reset restores the initial player and clears all failure state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	m.resetLocked()
}

// ResetPlayer clears the failure mark and retries of one player.
func (m *Machine) ResetPlayer(player Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failed, player)
	delete(m.retries, player)
	if m.allFailed && player.Valid() {
		m.allFailed = false
		m.current = player
	}
}

// AllFailed reports the terminal state.
func (m *Machine) AllFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allFailed
}

// Snapshot returns a copy of the state. Failed players are listed in Order.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Current:      m.current,
		Failed:       []Player{},
		Retries:      make(map[Player]int, len(m.retries)),
		AutoFallback: m.auto,
		LastError:    m.lastError,
		AllFailed:    m.allFailed,
	}
	for _, p := range Order {
		if m.failed[p] {
			st.Failed = append(st.Failed, p)
		}
	}
	for p, n := range m.retries {
		st.Retries[p] = n
	}
	return st
}

// Close cancels a pending ErrorAfter report. Later ErrorAfter calls are
// dropped.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}
