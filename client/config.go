package client

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/backend"
	"github.com/famomatic/ytmirror/internal/config"
	"github.com/famomatic/ytmirror/internal/store"
)

// Config holds configuration for the resolver client.
type Config struct {
	// HTTPClient is the client used for making requests.
	// If nil, a client honoring ProxyURL and HTTPTimeout is built.
	HTTPClient *http.Client

	// ProxyURL is the optional forward proxy for outbound requests.
	// If HTTPClient is provided, this field is ignored.
	ProxyURL string

	// HTTPTimeout bounds any single outbound request. Zero means 15s.
	HTTPTimeout time.Duration

	// RequestTimeout bounds each public call that has no deadline of its own.
	RequestTimeout time.Duration

	// Store persists priorities, working instances, proxy lists and the
	// library. Nil opens StoreConfig.
	Store       store.Store
	StoreConfig store.Config

	// Hosts replaces built-in host pools by pool name.
	Hosts map[string][]string

	// Endpoints overrides single-endpoint backends. Zero fields keep defaults.
	Endpoints backend.Endpoints

	// Proxies are static CORS relay prefixes tried before the remote list.
	Proxies []string
	// ProxyListURL is the remote relay list. Empty uses the built-in URL.
	ProxyListURL string
	// DisableProxies sends every request directly.
	DisableProxies bool

	// MinTubeListURL refreshes the MIN-Tube pool. Empty uses the built-in URL.
	MinTubeListURL string
	// MinTubeAllowlist restricts hosts accepted from the remote list.
	MinTubeAllowlist []string
	// DisableMinTubeList keeps the static MIN-Tube pool.
	DisableMinTubeList bool

	// YouTubeAPIKeys is the Data API key rotation pool.
	YouTubeAPIKeys []string

	// Adaptive orders the stream chain by observed success instead of the
	// persisted user list.
	Adaptive bool

	// Timeouts override per-backend call budgets.
	Timeouts map[string]time.Duration

	CacheCap    int
	StreamTTL   time.Duration
	MetadataTTL time.Duration
	InstanceCap int

	// ValidatorScript is an optional JavaScript predicate applied to race
	// responses in addition to the built-in checks.
	ValidatorScript string

	// PlayerInitial is the first player of the fallback chain.
	PlayerInitial string

	// Logger receives structured logs. Nil disables logging.
	Logger *zerolog.Logger
}

// FromFileConfig maps the loaded file configuration onto a client Config.
func FromFileConfig(c config.Config) Config {
	return Config{
		HTTPTimeout: c.HTTP.ClientTimeout,
		StoreConfig: store.Config{
			Driver:    c.Store.Driver,
			Path:      c.Store.Path,
			RedisAddr: c.Store.RedisAddr,
			RedisDB:   c.Store.RedisDB,
			Prefix:    c.Store.Prefix,
		},
		Hosts:            c.Hosts,
		Endpoints:        backend.Endpoints{EdgeURL: c.Edge.URL, EdgeKey: c.Edge.Key},
		Proxies:          c.Proxies.Static,
		ProxyListURL:     c.Proxies.RemoteURL,
		MinTubeListURL:   c.MinTube.ListURL,
		MinTubeAllowlist: c.MinTube.Allowlist,
		YouTubeAPIKeys:   c.YouTubeKeys,
		Adaptive:         c.Priority == config.PriorityAdaptive,
		Timeouts:         c.Timeouts,
		CacheCap:         c.Cache.Cap,
		StreamTTL:        c.Cache.StreamTTL,
		MetadataTTL:      c.Cache.MetadataTTL,
		InstanceCap:      c.InstanceCap,
		ValidatorScript:  c.Validator,
		PlayerInitial:    c.PlayerInitial,
	}
}
