package race

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/famomatic/ytmirror/internal/validate"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

// delayed answers after the host-specific delay unless the request is cancelled first.
func delayed(delays map[string]time.Duration, body func(host string) string) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		host := "https://" + r.URL.Host
		select {
		case <-time.After(delays[host]):
			return jsonResponse(http.StatusOK, body(host)), nil
		case <-r.Context().Done():
			return nil, r.Context().Err()
		}
	}
}

func build(host string) string { return host + "/api/v1/videos/jNQXAC9IVRw" }

func TestRaceFirstCompletionWins(t *testing.T) {
	delays := map[string]time.Duration{
		"https://slow.example":    300 * time.Millisecond,
		"https://fast.example":    50 * time.Millisecond,
		"https://slowest.example": 500 * time.Millisecond,
	}
	f := New(&http.Client{Transport: delayed(delays, func(host string) string {
		return `{"host":"` + host + `"}`
	})})

	hosts := []string{"https://slow.example", "https://fast.example", "https://slowest.example"}
	res, err := f.Race(context.Background(), build, hosts, "", 2*time.Second)
	if err != nil {
		t.Fatalf("Race() error = %v", err)
	}
	if res.Host != "https://fast.example" {
		t.Fatalf("winner = %s, want https://fast.example", res.Host)
	}
	if !strings.Contains(string(res.Body), "fast.example") {
		t.Fatalf("body = %s, want fast host payload", res.Body)
	}
}

func TestRaceAllForbiddenResolvesNil(t *testing.T) {
	delays := map[string]time.Duration{
		"https://a.example": 10 * time.Millisecond,
		"https://b.example": 20 * time.Millisecond,
		"https://c.example": 30 * time.Millisecond,
	}
	f := New(&http.Client{Transport: delayed(delays, func(string) string {
		return `{"message":"403 Forbidden"}`
	})})

	timeout := 300 * time.Millisecond
	start := time.Now()
	res, err := f.Race(context.Background(), build, []string{"https://a.example", "https://b.example", "https://c.example"}, "", timeout)
	if res != nil {
		t.Fatalf("Race() result = %+v, want nil", res)
	}
	if !errors.Is(err, ErrNoWinner) {
		t.Fatalf("Race() error = %v, want ErrNoWinner", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || len(exhausted.Attempts) != 3 {
		t.Fatalf("expected 3 attempt errors, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > timeout+DefaultGrace {
		t.Fatalf("race took %v, want <= %v", elapsed, timeout+DefaultGrace)
	}
}

func TestRaceDeadlineWhenHostsHang(t *testing.T) {
	hang := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})
	f := New(&http.Client{Transport: hang}, WithGrace(50*time.Millisecond))

	start := time.Now()
	_, err := f.Race(context.Background(), build, []string{"https://a.example", "https://b.example"}, "", 100*time.Millisecond)
	if err == nil {
		t.Fatalf("expected error for hanging hosts")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("race took %v, expected to stop near timeout+grace", elapsed)
	}
}

func TestRaceRoutesThroughProxy(t *testing.T) {
	var seen atomic.Value
	tr := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		seen.Store(r.URL.String())
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	})
	f := New(&http.Client{Transport: tr})

	res, err := f.Race(context.Background(), build, []string{"https://inv.example"}, "https://relay.example/raw?url=", time.Second)
	if err != nil {
		t.Fatalf("Race() error = %v", err)
	}
	want := "https://relay.example/raw?url=" + "https%3A%2F%2Finv.example%2Fapi%2Fv1%2Fvideos%2FjNQXAC9IVRw"
	if got := seen.Load().(string); got != want {
		t.Fatalf("requested %s, want %s", got, want)
	}
	if res.Proxy != "https://relay.example/raw?url=" {
		t.Fatalf("result proxy = %q", res.Proxy)
	}
}

func TestRaceCustomValidator(t *testing.T) {
	tr := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"title":"an error handling talk"}`), nil
	})
	f := New(&http.Client{Transport: tr}, WithValidator(validate.Lenient()))
	if _, err := f.Race(context.Background(), build, []string{"https://a.example"}, "", time.Second); err != nil {
		t.Fatalf("lenient validator should accept body, got %v", err)
	}

	strict := New(&http.Client{Transport: tr})
	if _, err := strict.Race(context.Background(), build, []string{"https://a.example"}, "", time.Second); err == nil {
		t.Fatalf("default validator should reject body containing 'error'")
	}
}

func TestBatchedWalksBatchesAndProxies(t *testing.T) {
	var calls atomic.Int32
	tr := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		if strings.Contains(r.URL.String(), "relay-two") && strings.Contains(r.URL.String(), "h4.example") {
			return jsonResponse(http.StatusOK, `{"ok":true}`), nil
		}
		return jsonResponse(http.StatusBadGateway, `bad gateway`), nil
	})
	f := New(&http.Client{Transport: tr})

	hosts := []string{"https://h1.example", "https://h2.example", "https://h3.example", "https://h4.example"}
	proxies := []string{"https://relay-one/?url=", "https://relay-two/?url="}
	res, err := f.Batched(context.Background(), build, hosts, proxies, 2, time.Second)
	if err != nil {
		t.Fatalf("Batched() error = %v", err)
	}
	if res.Host != "https://h4.example" || res.Proxy != "https://relay-two/?url=" {
		t.Fatalf("winner = %s via %s", res.Host, res.Proxy)
	}
	// relay-one: 4 requests, relay-two: 2 (batch 1) + up to 2 (batch 2).
	if got := calls.Load(); got < 7 || got > 8 {
		t.Fatalf("calls = %d, want 7 or 8", got)
	}
}

func TestRaceNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	delays := map[string]time.Duration{
		"https://fast.example": 5 * time.Millisecond,
		"https://slow.example": 5 * time.Second,
	}
	f := New(&http.Client{Transport: delayed(delays, func(string) string { return `{"ok":true}` })})
	if _, err := f.Race(context.Background(), build, []string{"https://fast.example", "https://slow.example"}, "", 10*time.Second); err != nil {
		t.Fatalf("Race() error = %v", err)
	}
}

func TestRaceFuncUsesCustomAttempts(t *testing.T) {
	f := New(nil)
	res, err := f.RaceFunc(context.Background(), []string{"a", "b", "c"}, time.Second, func(ctx context.Context, host string) (*Result, error) {
		switch host {
		case "a":
			return nil, errors.New("down")
		case "b":
			select {
			case <-time.After(20 * time.Millisecond):
				return &Result{Body: []byte(`{"host":"b"}`)}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			<-ctx.Done()
			return nil, ctx.Err()
		}
	})
	if err != nil {
		t.Fatalf("RaceFunc() error = %v", err)
	}
	if res.Host != "b" {
		t.Fatalf("winner = %q, want b", res.Host)
	}
}
