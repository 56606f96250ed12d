package fallback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fail(t *testing.T, m *Machine, p Player, times int) (Transition, error) {
	t.Helper()
	var tr Transition
	var err error
	for i := 0; i < times; i++ {
		tr, err = m.Error(p, "playback error")
	}
	return tr, err
}

func TestErrorsWalkOrderToTerminalState(t *testing.T) {
	m := New(WithInitial(PlayerEdu))

	tr, err := m.Error(PlayerEdu, "e1")
	require.NoError(t, err)
	assert.True(t, tr.Retry)
	tr, _ = m.Error(PlayerEdu, "e2")
	assert.True(t, tr.Retry)
	assert.Equal(t, PlayerEdu, m.Current())

	tr, err = m.Error(PlayerEdu, "e3")
	require.NoError(t, err)
	assert.True(t, tr.Switched())
	assert.Equal(t, PlayerYtdlp, tr.To)

	st := m.Snapshot()
	assert.Equal(t, []Player{PlayerEdu}, st.Failed)
	assert.True(t, st.AutoFallback)
	assert.Equal(t, "e3", st.LastError)

	_, _ = m.Error(PlayerYtdlp, "once")
	assert.Equal(t, 1, m.Snapshot().Retries[PlayerYtdlp])
	m.Success(PlayerYtdlp)
	st = m.Snapshot()
	assert.Zero(t, st.Retries[PlayerYtdlp])
	assert.False(t, st.AutoFallback)

	_, err = fail(t, m, PlayerYtdlp, 3)
	require.NoError(t, err)
	assert.Equal(t, PlayerInvidious, m.Current())
	_, err = fail(t, m, PlayerInvidious, 3)
	require.NoError(t, err)
	assert.Equal(t, PlayerNocookie, m.Current())
	_, err = fail(t, m, PlayerNocookie, 3)
	require.ErrorIs(t, err, ErrAllPlayersFailed)
	assert.True(t, m.AllFailed())

	_, err = m.Error(PlayerNocookie, "again")
	require.ErrorIs(t, err, ErrAllPlayersFailed)

	m.Reset()
	st = m.Snapshot()
	assert.Equal(t, PlayerEdu, st.Current)
	assert.Empty(t, st.Failed)
	assert.Empty(t, st.Retries)
	assert.False(t, st.AllFailed)
}

func TestStaleErrorsAreIgnored(t *testing.T) {
	m := New()
	assert.Equal(t, DefaultInitial, m.Current())
	tr, err := m.Error(PlayerEdu, "late event")
	require.NoError(t, err)
	assert.True(t, tr.Ignored)
	assert.Empty(t, m.Snapshot().Retries)
}

func TestSwitchKeepsFailedMark(t *testing.T) {
	m := New(WithInitial(PlayerEdu))
	_, _ = fail(t, m, PlayerEdu, 3)
	require.Equal(t, PlayerYtdlp, m.Current())

	require.True(t, m.Switch(PlayerEdu))
	st := m.Snapshot()
	assert.Equal(t, PlayerEdu, st.Current)
	assert.Equal(t, []Player{PlayerEdu}, st.Failed)
	assert.False(t, st.AutoFallback)

	assert.False(t, m.Switch(Player("flash")))

	m.ResetPlayer(PlayerEdu)
	assert.Empty(t, m.Snapshot().Failed)
}

func TestErrorAfterDebounces(t *testing.T) {
	var mu sync.Mutex
	var got []Transition
	m := New(WithInitial(PlayerEdu), WithMaxRetries(0), WithNotify(func(tr Transition, _ error) {
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	}))
	defer m.Close()

	for i := 0; i < 5; i++ {
		m.ErrorAfter(PlayerEdu, "buffering", 30*time.Millisecond)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, PlayerYtdlp, got[0].To)
}

func TestCloseCancelsPendingError(t *testing.T) {
	called := make(chan struct{}, 1)
	m := New(WithNotify(func(Transition, error) { called <- struct{}{} }))
	m.ErrorAfter(m.Current(), "x", 20*time.Millisecond)
	m.Close()
	select {
	case <-called:
		t.Fatal("notify ran after Close")
	case <-time.After(80 * time.Millisecond):
	}
	assert.Empty(t, m.Snapshot().Retries)
}
