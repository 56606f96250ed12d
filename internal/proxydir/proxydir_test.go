package proxydir

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famomatic/ytmirror/internal/store"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body)), Header: make(http.Header)}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const remoteList = `# community relays
// another comment

"https://relay-one.example/?url=",
'https://relay-two.example/raw'
- https://relay-three.example/fetch
ftp://not-a-relay.example/
https://api.allorigins.win/raw?url=
`

func TestParseList(t *testing.T) {
	got := ParseList(remoteList)
	want := []string{
		"https://relay-one.example/?url=",
		"https://relay-two.example/raw/",
		"https://relay-three.example/fetch/",
		"https://api.allorigins.win/raw?url=",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseList() mismatch (-want +got):\n%s", diff)
	}
}

func newRemote(t *testing.T, calls *atomic.Int32) *http.Client {
	t.Helper()
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "lists.example" {
			calls.Add(1)
			return respond(http.StatusOK, remoteList), nil
		}
		return respond(http.StatusBadGateway, "bad gateway"), nil
	})}
}

func TestDynamicDedupesAgainstStaticAndPersists(t *testing.T) {
	var calls atomic.Int32
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	st := store.NewMemory()
	d := New(context.Background(), Config{
		RemoteURL: "https://lists.example/main.txt",
		Store:     st,
		Client:    newRemote(t, &calls),
		Now:       clk.Now,
	})

	dyn := d.Dynamic(context.Background())
	require.Len(t, dyn, 3)
	assert.NotContains(t, dyn, "https://api.allorigins.win/raw?url=")

	all := d.All()
	assert.Len(t, all, len(DefaultStatic)+3)
	assert.Equal(t, DefaultStatic, all[:len(DefaultStatic)])

	var persisted []string
	require.True(t, store.GetJSON(context.Background(), st, KeyProxies, &persisted))
	assert.Equal(t, dyn, persisted)
	assert.Equal(t, clk.Now().UnixMilli(), store.GetTime(context.Background(), st, KeyProxiesTS).UnixMilli())

	// Second call uses the in-memory list.
	d.Dynamic(context.Background())
	assert.EqualValues(t, 1, calls.Load())
}

func TestPersistedListExpires(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	st := store.NewMemory()
	require.NoError(t, store.SetJSON(ctx, st, KeyProxies, []string{"https://cached.example/?u="}))
	require.NoError(t, store.SetTime(ctx, st, KeyProxiesTS, clk.Now().Add(-10*time.Minute)))

	fresh := New(ctx, Config{Store: st, Now: clk.Now, Client: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("unexpected network call")
		return nil, nil
	})}})
	assert.Equal(t, []string{"https://cached.example/?u="}, fresh.Dynamic(ctx))

	clk.Advance(25 * time.Minute)
	stale := New(ctx, Config{Store: st, Now: clk.Now, Client: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return respond(http.StatusServiceUnavailable, ""), nil
	})}})
	assert.Empty(t, stale.Dynamic(ctx))
	assert.Len(t, stale.All(), len(DefaultStatic))
}

func TestRemoteFetchCooldown(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return respond(http.StatusInternalServerError, ""), nil
	})}
	d := New(ctx, Config{RemoteURL: "https://lists.example/main.txt", Client: client, Now: clk.Now})

	assert.Empty(t, d.Dynamic(ctx))
	assert.Empty(t, d.Dynamic(ctx))
	assert.EqualValues(t, 1, calls.Load(), "second attempt inside cooldown must not hit the network")

	clk.Advance(DefaultCooldown + time.Second)
	d.Dynamic(ctx)
	assert.EqualValues(t, 2, calls.Load())

	d.Refresh(ctx)
	assert.EqualValues(t, 3, calls.Load(), "refresh bypasses the cooldown")
}

func TestFetchWithFallbackStaticThenDynamic(t *testing.T) {
	ctx := context.Background()
	target := "https://inv.example/api/v1/videos/jNQXAC9IVRw"
	var mu sync.Mutex
	var tried []string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		u := r.URL.String()
		mu.Lock()
		tried = append(tried, r.URL.Host)
		mu.Unlock()
		switch {
		case r.URL.Host == "lists.example":
			return respond(http.StatusOK, "https://dyn.example/?url=\n"), nil
		case r.URL.Host == "s1.example":
			return respond(http.StatusOK, `{"error":"upstream"}`), nil
		case r.URL.Host == "dyn.example" && strings.Contains(u, "inv.example"):
			return respond(http.StatusOK, `{"title":"Me at the zoo"}`), nil
		}
		return respond(http.StatusBadGateway, ""), nil
	})}
	d := New(ctx, Config{
		Static:    []string{"https://s1.example/?url=", "https://s2.example/?url="},
		RemoteURL: "https://lists.example/main.txt",
		Client:    client,
	})

	var out struct {
		Title string `json:"title"`
	}
	require.True(t, d.FetchWithFallback(ctx, target, time.Second, 2, &out))
	assert.Equal(t, "Me at the zoo", out.Title)
	assert.Equal(t, []string{"s1.example", "s2.example", "s1.example", "s2.example", "lists.example", "dyn.example"}, tried)
}

func TestFetchWithFallbackAllFail(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "<!DOCTYPE html><html></html>"), nil
	})}
	d := New(context.Background(), Config{Static: []string{"https://s1.example/?url="}, Client: client})
	var out map[string]any
	assert.False(t, d.FetchWithFallback(context.Background(), "https://x.example/", time.Second, 1, &out))
}
