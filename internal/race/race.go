// Package race issues concurrent bounded-timeout GETs against candidate
// mirror hosts and returns the first validated response.
package race

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/metrics"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

// DefaultGrace is added to the per-request timeout to bound a whole race.
const DefaultGrace = 500 * time.Millisecond

// maxBodyBytes caps how much of a mirror response is read.
const maxBodyBytes = 16 << 20

var (
	// ErrNoWinner is returned when every candidate failed validation or transport.
	ErrNoWinner = errors.New("race: no valid response")
	// ErrDeadline is returned when the race exceeded timeout plus grace.
	ErrDeadline = errors.New("race: deadline exceeded")
)

// Result is the winning response of a race.
type Result struct {
	Body    []byte
	Host    string
	Proxy   string
	URL     string
	Elapsed time.Duration
}

// AttemptError captures one candidate failure.
type AttemptError struct {
	Host string
	Err  error
}

func (e AttemptError) Error() string { return e.Host + ": " + e.Err.Error() }

// HTTPStatusError indicates a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status=%d url=%s", e.StatusCode, e.URL)
}

// Fetcher runs races. It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	validator validate.Validator
	grace     time.Duration
	header    http.Header
	logger    zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithValidator replaces the default mirror validator.
func WithValidator(v validate.Validator) Option {
	return func(f *Fetcher) {
		if v != nil {
			f.validator = v
		}
	}
}

// WithGrace overrides DefaultGrace.
func WithGrace(d time.Duration) Option {
	return func(f *Fetcher) { f.grace = d }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) { f.header.Set(key, value) }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New builds a Fetcher. A nil client uses http.DefaultClient.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:    client,
		validator: validate.Default(),
		grace:     DefaultGrace,
		header:    http.Header{"Accept": []string{"application/json"}},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Validator returns the configured validator.
func (f *Fetcher) Validator() validate.Validator { return f.validator }

// Grace returns the slack added to per-request timeouts to bound a race.
func (f *Fetcher) Grace() time.Duration { return f.grace }

// ViaProxy routes target through a CORS relay prefix. An empty prefix
// returns target unchanged.
func ViaProxy(proxy, target string) string {
	if proxy == "" {
		return target
	}
	return proxy + url.QueryEscape(target)
}

type outcome struct {
	res *Result
	err AttemptError
}

// Race requests build(host) for every host concurrently, optionally through
// proxy, and returns the first response accepted by the validator. Losing
// requests are cancelled. The race as a whole is bounded by timeout + grace.
func (f *Fetcher) Race(ctx context.Context, build func(host string) string, hosts []string, proxy string, timeout time.Duration) (*Result, error) {
	return f.RaceWith(ctx, f.validator, build, hosts, proxy, timeout)
}

// RaceWith is Race with an explicit validator.
func (f *Fetcher) RaceWith(ctx context.Context, v validate.Validator, build func(host string) string, hosts []string, proxy string, timeout time.Duration) (*Result, error) {
	if v == nil {
		v = f.validator
	}
	return f.RaceFunc(ctx, hosts, timeout+f.grace, func(ctx context.Context, host string) (*Result, error) {
		target := ViaProxy(proxy, build(host))
		body, err := f.get(ctx, v, target, timeout)
		if err != nil {
			return nil, err
		}
		return &Result{Body: body, Host: host, Proxy: proxy, URL: target}, nil
	})
}

// Attempt produces one candidate's result. It must honor ctx.
type Attempt func(ctx context.Context, host string) (*Result, error)

// RaceFunc runs attempt for every host concurrently and returns the first
// success. Remaining attempts are cancelled. The whole race is bounded by
// deadline.
func (f *Fetcher) RaceFunc(ctx context.Context, hosts []string, deadline time.Duration, attempt Attempt) (*Result, error) {
	if len(hosts) == 0 {
		return nil, ErrNoWinner
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make(chan outcome, len(hosts))
	var wg sync.WaitGroup
	start := time.Now()

	for _, host := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			res, err := attempt(ctx, host)
			if err != nil || res == nil {
				if err == nil {
					err = ErrNoWinner
				}
				results <- outcome{err: AttemptError{Host: host, Err: err}}
				return
			}
			if res.Host == "" {
				res.Host = host
			}
			res.Elapsed = time.Since(start)
			results <- outcome{res: res}
		}(host)
	}

	// All-complete is tracked separately from first-success.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var attempts []AttemptError
	for {
		select {
		case o := <-results:
			if o.res != nil {
				return f.won(ctx, o.res), nil
			}
			attempts = append(attempts, o.err)
			if len(attempts) == len(hosts) {
				metrics.RecordRace("exhausted")
				return nil, &ExhaustedError{Attempts: attempts}
			}
		case <-done:
			// Drain anything that landed between the last receive and close.
			for {
				select {
				case o := <-results:
					if o.res != nil {
						return f.won(ctx, o.res), nil
					}
					attempts = append(attempts, o.err)
				default:
					metrics.RecordRace("exhausted")
					return nil, &ExhaustedError{Attempts: attempts}
				}
			}
		case <-ctx.Done():
			metrics.RecordRace("deadline")
			return nil, ErrDeadline
		}
	}
}

func (f *Fetcher) won(ctx context.Context, res *Result) *Result {
	metrics.RecordRace("won")
	backend, _ := types.BackendNameFromContext(ctx)
	f.logger.Debug().
		Str("backend", backend).
		Str("host", res.Host).
		Str("proxy", res.Proxy).
		Dur("elapsed", res.Elapsed).
		Msg("race won")
	return res
}

// ExhaustedError reports that every candidate failed.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("race: no valid response from %d candidate(s)", len(e.Attempts))
}

func (e *ExhaustedError) Unwrap() error { return ErrNoWinner }

// Fetch performs one validated GET with its own timeout.
func (f *Fetcher) Fetch(ctx context.Context, target string, timeout time.Duration) ([]byte, error) {
	return f.get(ctx, f.validator, target, timeout)
}

// FetchWith is Fetch with an explicit validator.
func (f *Fetcher) FetchWith(ctx context.Context, v validate.Validator, target string, timeout time.Duration) ([]byte, error) {
	if v == nil {
		v = f.validator
	}
	return f.get(ctx, v, target, timeout)
}

// Do sends req with its own timeout and returns the raw status and body
// without validation. Used for HEAD probes and POST APIs.
func (f *Fetcher) Do(ctx context.Context, req *http.Request, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(ctx)
	for k, vals := range f.header {
		if req.Header.Get(k) == "" {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (f *Fetcher) get(ctx context.Context, v validate.Validator, target string, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	status, body, err := f.Do(ctx, req, timeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &HTTPStatusError{URL: target, StatusCode: status}
	}
	if err := v.Validate(status, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Batched walks proxies in order and, for each proxy, races hosts in batches
// of batchSize. It returns the first winner. An empty proxy means direct.
func (f *Fetcher) Batched(ctx context.Context, build func(host string) string, hosts []string, proxies []string, batchSize int, timeout time.Duration) (*Result, error) {
	if batchSize <= 0 {
		batchSize = len(hosts)
	}
	for _, proxy := range proxies {
		for startIdx := 0; startIdx < len(hosts); startIdx += batchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			end := startIdx + batchSize
			if end > len(hosts) {
				end = len(hosts)
			}
			res, err := f.Race(ctx, build, hosts[startIdx:end], proxy, timeout)
			if err == nil {
				return res, nil
			}
			backend, _ := types.BackendNameFromContext(ctx)
			f.logger.Debug().
				Str("backend", backend).
				Str("proxy", proxy).
				Int("batch", startIdx/batchSize+1).
				Err(err).
				Msg("batch failed")
		}
	}
	return nil, ErrNoWinner
}
