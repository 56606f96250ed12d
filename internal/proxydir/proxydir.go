// Package proxydir maintains the CORS relay prefixes used to reach mirror
// APIs: a static baseline plus a remote list that is fetched, cached and
// persisted with an expiry.
package proxydir

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/famomatic/ytmirror/internal/metrics"
	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/store"
	"github.com/famomatic/ytmirror/internal/validate"
)

const (
	// DefaultRemoteURL is the text list of community relays.
	DefaultRemoteURL = "https://raw.githubusercontent.com/woolisbest/crosproxy-list/refs/heads/main/main.txt"

	// KeyProxies and KeyProxiesTS are the persisted dynamic list and its
	// millisecond fetch timestamp.
	KeyProxies   = "cors_proxies_github"
	KeyProxiesTS = "cors_proxies_github_ts"

	DefaultCacheTTL = 30 * time.Minute
	DefaultCooldown = 5 * time.Minute

	remoteFetchTimeout = 5 * time.Second
)

// DefaultStatic is the built-in relay baseline.
var DefaultStatic = []string{
	"https://api.allorigins.win/raw?url=",
	"https://api.codetabs.com/v1/proxy?quest=",
	"https://thingproxy.freeboard.io/fetch/",
	"https://corsproxy.io/?url=",
	"https://cors.lol/?url=",
	"https://yacdn.org/proxy/",
	"https://proxy.cors.sh/",
	"https://cors.wtf/?url=",
	"https://corsproxy.rocks/?url=",
	"https://cors.hyoo.ru/?url=",
	"https://cors.miaouf.com/?url=",
	"https://crossorigin.me/",
	"https://cors.x2u.in/",
	"https://jsonp.afeld.me/?url=",
	"https://cors-proxy.htmldriven.com/?url=",
	"https://corsproxy.our.buildo.io/?url=",
	"https://cors.now.sh/",
	"https://api.allorigins.win/get?url=",
}

// Config configures a Directory.
type Config struct {
	Static    []string
	RemoteURL string
	CacheTTL  time.Duration
	Cooldown  time.Duration
	Store     store.Store
	Client    *http.Client
	Logger    *zerolog.Logger
	// Now is used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Directory is safe for concurrent use.
type Directory struct {
	static    []string
	remoteURL string
	ttl       time.Duration
	cooldown  time.Duration
	store     store.Store
	client    *http.Client
	fetcher   *race.Fetcher
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	dynamic []string
	limiter *rate.Limiter
}

// New builds a Directory and loads a fresh persisted dynamic list if any.
func New(ctx context.Context, cfg Config) *Directory {
	d := &Directory{
		static:    cfg.Static,
		remoteURL: cfg.RemoteURL,
		ttl:       cfg.CacheTTL,
		cooldown:  cfg.Cooldown,
		store:     cfg.Store,
		client:    cfg.Client,
		now:       cfg.Now,
	}
	if len(d.static) == 0 {
		d.static = DefaultStatic
	}
	d.static = append([]string(nil), d.static...)
	if d.remoteURL == "" {
		d.remoteURL = DefaultRemoteURL
	}
	if d.ttl <= 0 {
		d.ttl = DefaultCacheTTL
	}
	if d.cooldown <= 0 {
		d.cooldown = DefaultCooldown
	}
	if d.store == nil {
		d.store = store.NewMemory()
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.now == nil {
		d.now = time.Now
	}
	if cfg.Logger != nil {
		d.logger = cfg.Logger.With().Str("component", "proxydir").Logger()
	} else {
		d.logger = zerolog.Nop()
	}
	d.fetcher = race.New(d.client, race.WithValidator(validate.Lenient()), race.WithLogger(d.logger))
	d.limiter = d.newLimiter()
	d.dynamic = d.loadPersisted(ctx)
	return d
}

// one fetch per cooldown window
func (d *Directory) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(d.cooldown), 1)
}

func (d *Directory) loadPersisted(ctx context.Context) []string {
	ts := store.GetTime(ctx, d.store, KeyProxiesTS)
	if ts.IsZero() || d.now().Sub(ts) >= d.ttl {
		return nil
	}
	var list []string
	if !store.GetJSON(ctx, d.store, KeyProxies, &list) {
		return nil
	}
	return list
}

// Static returns a copy of the static baseline.
func (d *Directory) Static() []string {
	return append([]string(nil), d.static...)
}

// Dynamic returns the remote list, fetching it on first use.
func (d *Directory) Dynamic(ctx context.Context) []string {
	d.mu.Lock()
	have := len(d.dynamic) > 0
	list := append([]string(nil), d.dynamic...)
	d.mu.Unlock()
	if have {
		return list
	}
	return d.fetchRemote(ctx)
}

// Refresh bypasses the cooldown and refetches the remote list.
func (d *Directory) Refresh(ctx context.Context) []string {
	d.mu.Lock()
	d.limiter = d.newLimiter()
	d.mu.Unlock()
	return d.fetchRemote(ctx)
}

// All returns static prefixes followed by dynamic ones not already present.
func (d *Directory) All() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return mergeUnique(d.static, d.dynamic)
}

func (d *Directory) fetchRemote(ctx context.Context) []string {
	d.mu.Lock()
	if !d.limiter.AllowN(d.now(), 1) {
		list := append([]string(nil), d.dynamic...)
		d.mu.Unlock()
		metrics.RecordProxyRefresh("cooldown")
		return list
	}
	d.mu.Unlock()

	req, err := http.NewRequest(http.MethodGet, d.remoteURL, nil)
	if err != nil {
		metrics.RecordProxyRefresh("error")
		return nil
	}
	status, body, err := d.fetcher.Do(ctx, req, remoteFetchTimeout)
	if err != nil || status < 200 || status > 299 {
		d.logger.Debug().Err(err).Int("status", status).Msg("remote proxy list fetch failed")
		metrics.RecordProxyRefresh("error")
		return nil
	}
	list := mergeUnique(nil, ParseList(string(body)))
	list = subtract(list, d.static)
	if len(list) == 0 {
		metrics.RecordProxyRefresh("empty")
		return nil
	}

	d.mu.Lock()
	d.dynamic = list
	d.mu.Unlock()

	if err := store.SetJSON(ctx, d.store, KeyProxies, list); err != nil {
		d.logger.Warn().Err(err).Msg("persist proxy list")
	}
	if err := store.SetTime(ctx, d.store, KeyProxiesTS, d.now()); err != nil {
		d.logger.Warn().Err(err).Msg("persist proxy list timestamp")
	}
	d.logger.Info().Int("count", len(list)).Msg("loaded remote proxy list")
	metrics.RecordProxyRefresh("loaded")
	return append([]string(nil), list...)
}

// FetchWithFallback GETs target through static relays for maxRetries passes,
// then through each dynamic relay once, decoding the first valid JSON into
// out. It reports whether any relay succeeded; relay failures are not errors.
func (d *Directory) FetchWithFallback(ctx context.Context, target string, timeout time.Duration, maxRetries int, out any) bool {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	for pass := 0; pass < maxRetries; pass++ {
		for _, p := range d.static {
			if ctx.Err() != nil {
				return false
			}
			if d.tryRelay(ctx, p, target, timeout, out) {
				return true
			}
		}
	}
	d.logger.Debug().Str("target", target).Msg("static relays failed, trying remote list")
	for _, p := range d.Dynamic(ctx) {
		if ctx.Err() != nil {
			return false
		}
		if d.tryRelay(ctx, p, target, timeout, out) {
			d.logger.Debug().Str("proxy", p).Msg("remote relay succeeded")
			return true
		}
	}
	return false
}

func (d *Directory) tryRelay(ctx context.Context, proxy, target string, timeout time.Duration, out any) bool {
	body, err := d.fetcher.Fetch(ctx, race.ViaProxy(proxy, target), timeout)
	if err != nil {
		return false
	}
	if out == nil {
		return true
	}
	return json.Unmarshal(body, out) == nil
}

// ParseList extracts relay prefixes from a remote text list. Blank lines and
// "#" or "//" comments are skipped, quotes and list dashes are stripped, only
// http(s) entries are kept, and entries without a query delimiter get a
// trailing slash.
func ParseList(text string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, `"`) || strings.HasPrefix(line, "'") {
			line = strings.TrimLeft(line, `"'`)
			line = strings.TrimSuffix(line, ",")
			line = strings.TrimRight(line, `"'`)
		}
		if strings.HasPrefix(line, "-") {
			line = strings.TrimSpace(line[1:])
		}
		if !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
			continue
		}
		if !strings.Contains(line, "?") && !strings.HasSuffix(line, "/") {
			line += "/"
		}
		out = append(out, line)
	}
	return out
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func subtract(list, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, p := range remove {
		drop[p] = struct{}{}
	}
	out := list[:0]
	for _, p := range list {
		if _, ok := drop[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
