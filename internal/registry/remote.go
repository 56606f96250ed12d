package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/famomatic/ytmirror/internal/race"
)

const (
	defaultRemoteTimeout  = 2 * time.Second
	defaultRemoteCooldown = 5 * time.Minute
)

// RemoteList refreshes a pool from a remote JSON array of base URLs. Remote
// entries are only accepted when their host is on the allowlist; an empty
// allowlist accepts any http(s) entry.
type RemoteList struct {
	URL       string
	Pool      *Pool
	Allowlist []string
	Timeout   time.Duration
	Fetcher   *race.Fetcher
	Logger    zerolog.Logger

	once    sync.Once
	mu      sync.Mutex
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRemoteList wires a remote list to pool with the default cooldown.
func NewRemoteList(listURL string, pool *Pool, allowlist []string, fetcher *race.Fetcher, logger zerolog.Logger) *RemoteList {
	return &RemoteList{URL: listURL, Pool: pool, Allowlist: allowlist, Fetcher: fetcher, Logger: logger}
}

// WithCooldown overrides the refresh cooldown and clock. Used by tests.
func (l *RemoteList) WithCooldown(d time.Duration, now func() time.Time) *RemoteList {
	l.limiter = rate.NewLimiter(rate.Every(d), 1)
	l.now = now
	return l
}

func (l *RemoteList) init() {
	l.once.Do(func() {
		if l.limiter == nil {
			l.limiter = rate.NewLimiter(rate.Every(defaultRemoteCooldown), 1)
		}
		if l.now == nil {
			l.now = time.Now
		}
		if l.Timeout <= 0 {
			l.Timeout = defaultRemoteTimeout
		}
		if l.Fetcher == nil {
			l.Fetcher = race.New(nil)
		}
	})
}

// Refresh fetches the remote list at most once per cooldown window and
// returns the pool hosts afterwards. Failures keep the current pool.
func (l *RemoteList) Refresh(ctx context.Context) []string {
	l.init()
	if l.URL == "" {
		return l.Pool.Hosts()
	}
	l.mu.Lock()
	allowed := l.limiter.AllowN(l.now(), 1)
	l.mu.Unlock()
	if !allowed {
		return l.Pool.Hosts()
	}

	req, err := http.NewRequest(http.MethodGet, l.URL, nil)
	if err != nil {
		return l.Pool.Hosts()
	}
	status, body, err := l.Fetcher.Do(ctx, req, l.Timeout)
	if err != nil || status < 200 || status > 299 {
		l.Logger.Debug().Err(err).Int("status", status).Str("pool", l.Pool.Name()).Msg("remote server list unavailable")
		return l.Pool.Hosts()
	}
	var list []string
	if err := json.Unmarshal(body, &list); err != nil {
		l.Logger.Debug().Err(err).Str("pool", l.Pool.Name()).Msg("remote server list malformed")
		return l.Pool.Hosts()
	}
	accepted := l.filter(list)
	if l.Pool.Replace(accepted) {
		l.Logger.Debug().Int("count", len(accepted)).Str("pool", l.Pool.Name()).Msg("updated server list")
	}
	return l.Pool.Hosts()
}

func (l *RemoteList) filter(list []string) []string {
	allow := make(map[string]struct{}, len(l.Allowlist))
	for _, h := range l.Allowlist {
		allow[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	out := make([]string, 0, len(list))
	for _, raw := range list {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if len(allow) > 0 {
			if _, ok := allow[strings.ToLower(u.Hostname())]; !ok {
				continue
			}
		}
		out = append(out, strings.TrimSpace(raw))
	}
	return out
}
