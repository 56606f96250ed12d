// Package config loads the resolver configuration from a YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/famomatic/ytmirror/internal/cache"
	"github.com/famomatic/ytmirror/internal/fallback"
	"github.com/famomatic/ytmirror/internal/instances"
	"github.com/famomatic/ytmirror/internal/proxydir"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/store"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "YTMIRROR_"

// Priority modes for the stream chain.
const (
	PriorityStatic   = "static"
	PriorityAdaptive = "adaptive"
)

// ErrUnknownConfigField classifies strict YAML failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

type StoreConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDB"`
	Prefix    string `yaml:"prefix"`
}

type ProxyConfig struct {
	Static    []string      `yaml:"static"`
	RemoteURL string        `yaml:"remoteURL"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type MinTubeConfig struct {
	ListURL string `yaml:"listURL"`

	// Allowlist restricts hosts accepted from the remote list. Empty accepts all.
	Allowlist []string `yaml:"allowlist"`
}

type CacheConfig struct {
	Cap         int           `yaml:"cap"`
	StreamTTL   time.Duration `yaml:"streamTTL"`
	MetadataTTL time.Duration `yaml:"metadataTTL"`
}

type EdgeConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

type HTTPConfig struct {
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `yaml:"rateLimit"`

	// ClientTimeout bounds any single outbound request.
	ClientTimeout time.Duration `yaml:"clientTimeout"`
}

// Config is the full configuration.
type Config struct {
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"logLevel"`
	LogPretty bool   `yaml:"logPretty"`

	Store StoreConfig `yaml:"store"`

	// Priority is the stream chain mode: static (user list) or adaptive.
	Priority string `yaml:"priority"`

	// Timeouts override per-backend call budgets.
	Timeouts map[string]time.Duration `yaml:"timeouts"`

	// Hosts override built-in host pools by pool name.
	Hosts map[string][]string `yaml:"hosts"`

	InstanceCap   int           `yaml:"instanceCap"`
	Proxies       ProxyConfig   `yaml:"proxies"`
	MinTube       MinTubeConfig `yaml:"minTube"`
	YouTubeKeys   []string      `yaml:"youtubeKeys"`
	Edge          EdgeConfig    `yaml:"edge"`
	Cache         CacheConfig   `yaml:"cache"`
	Validator     string        `yaml:"validatorScript"`
	PlayerInitial string        `yaml:"playerInitial"`
	HTTP          HTTPConfig    `yaml:"http"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Store:    StoreConfig{Driver: store.DriverMemory},
		Priority: PriorityStatic,
		Proxies: ProxyConfig{
			RemoteURL: proxydir.DefaultRemoteURL,
			CacheTTL:  proxydir.DefaultCacheTTL,
			Cooldown:  proxydir.DefaultCooldown,
		},
		MinTube:       MinTubeConfig{ListURL: registry.DefaultMinTubeListURL},
		InstanceCap:   instances.DefaultCap,
		Cache:         CacheConfig{Cap: cache.DefaultCap, StreamTTL: cache.StreamTTL, MetadataTTL: cache.MetadataTTL},
		PlayerInitial: string(fallback.DefaultInitial),
		HTTP:          HTTPConfig{RateLimit: 120, ClientTimeout: 15 * time.Second},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeStrict decodes one YAML document onto cfg, rejecting unknown keys.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyEnv overlays YTMIRROR_* variables. Empty values are ignored.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	var errs []error
	setString := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setList := func(name string, dst *[]string) {
		if v, ok := get(name); ok {
			*dst = splitList(v)
		}
	}

	setString("LISTEN", &cfg.Listen)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("STORE_DRIVER", &cfg.Store.Driver)
	setString("STORE_PATH", &cfg.Store.Path)
	setString("REDIS_ADDR", &cfg.Store.RedisAddr)
	setInt("REDIS_DB", &cfg.Store.RedisDB)
	setString("PRIORITY", &cfg.Priority)
	setList("YOUTUBE_API_KEYS", &cfg.YouTubeKeys)
	setString("EDGE_URL", &cfg.Edge.URL)
	setString("EDGE_KEY", &cfg.Edge.Key)
	setList("PROXIES", &cfg.Proxies.Static)
	setString("PROXY_LIST_URL", &cfg.Proxies.RemoteURL)
	setString("VALIDATOR_SCRIPT", &cfg.Validator)
	setString("PLAYER_INITIAL", &cfg.PlayerInitial)
	setInt("RATE_LIMIT", &cfg.HTTP.RateLimit)
	setInt("CACHE_CAP", &cfg.Cache.Cap)
	return errors.Join(errs...)
}

// FieldError reports one invalid setting.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

// Validate checks every field and joins all problems.
func (c Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Listen) == "" {
		bad("listen", "must not be empty")
	}
	switch strings.ToLower(c.Store.Driver) {
	case "", store.DriverMemory, store.DriverRedis:
	case store.DriverFile, store.DriverBadger, store.DriverSQLite:
		if c.Store.Path == "" {
			bad("store.path", "required for driver %q", c.Store.Driver)
		}
	default:
		bad("store.driver", "unknown driver %q", c.Store.Driver)
	}
	if c.Store.Driver == store.DriverRedis && c.Store.RedisAddr == "" {
		bad("store.redisAddr", "required for redis")
	}
	if c.Priority != PriorityStatic && c.Priority != PriorityAdaptive {
		bad("priority", "must be %q or %q", PriorityStatic, PriorityAdaptive)
	}

	known := map[string]bool{}
	for _, id := range append(append([]string(nil), types.DefaultStreamOrder...), types.DefaultMetadataOrder...) {
		known[id] = true
	}
	for id, d := range c.Timeouts {
		if !known[id] {
			bad("timeouts."+id, "unknown backend")
		} else if d <= 0 {
			bad("timeouts."+id, "must be positive")
		}
	}
	for name := range c.Hosts {
		if _, ok := registry.Defaults[name]; !ok {
			bad("hosts."+name, "unknown pool")
		}
	}
	if c.InstanceCap < 1 {
		bad("instanceCap", "must be at least 1")
	}
	if c.Cache.Cap < 2 {
		bad("cache.cap", "must be at least 2")
	}
	if c.Cache.StreamTTL <= 0 || c.Cache.MetadataTTL <= 0 {
		bad("cache", "ttls must be positive")
	}
	if (c.Edge.URL == "") != (c.Edge.Key == "") {
		bad("edge", "url and key must be set together")
	}
	if c.Validator != "" {
		if _, err := validate.NewScript(c.Validator); err != nil {
			bad("validatorScript", "%v", err)
		}
	}
	if !fallback.Player(c.PlayerInitial).Valid() {
		bad("playerInitial", "unknown player %q", c.PlayerInitial)
	}
	if c.HTTP.RateLimit < 0 {
		bad("http.rateLimit", "must not be negative")
	}
	return errors.Join(errs...)
}
