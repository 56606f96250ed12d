// Package client is the public facade over the multi-source resolver.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/backend"
	"github.com/famomatic/ytmirror/internal/cache"
	"github.com/famomatic/ytmirror/internal/fallback"
	"github.com/famomatic/ytmirror/internal/instances"
	"github.com/famomatic/ytmirror/internal/library"
	xlog "github.com/famomatic/ytmirror/internal/log"
	"github.com/famomatic/ytmirror/internal/orchestrator"
	"github.com/famomatic/ytmirror/internal/policy"
	"github.com/famomatic/ytmirror/internal/proxydir"
	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/store"
	"github.com/famomatic/ytmirror/internal/types"
	"github.com/famomatic/ytmirror/internal/validate"
)

const defaultHTTPTimeout = 15 * time.Second

// Client is the high-level resolver. It is safe for concurrent use.
type Client struct {
	config   Config
	store    store.Store
	ownStore bool
	proxies  *proxydir.Directory
	priority *policy.Static
	engine   *orchestrator.Engine
	library  *library.Library
	player   *fallback.Machine
	logger   zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a resolver client.
func New(ctx context.Context, config Config) (*Client, error) {
	return NewClient(ctx, config)
}

// NewClient creates a resolver client, opening the configured store.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	logger := xlog.Component(config.Logger, "client")
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaultHTTPTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = defaultHTTPClient(config.ProxyURL, config.HTTPTimeout)
	}

	st, ownStore := config.Store, false
	if st == nil {
		var err error
		if st, err = store.Open(config.StoreConfig); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		ownStore = true
	}

	validator := validate.Default()
	if config.ValidatorScript != "" {
		script, err := validate.NewScript(config.ValidatorScript)
		if err != nil {
			if ownStore {
				_ = st.Close()
			}
			return nil, err
		}
		validator = validate.Chain{validator, script}
	}

	lib := library.New(st)
	fetcher := race.New(config.HTTPClient,
		race.WithValidator(validator),
		race.WithLogger(xlog.Component(config.Logger, "race")),
	)
	reg := registry.New(config.Hosts)

	deps := &backend.Deps{
		Fetcher:   fetcher,
		Registry:  reg,
		Keys:      registry.NewKeyPool(config.YouTubeAPIKeys),
		Endpoints: config.Endpoints,
		Thumbnail: func() types.ThumbnailHost { return lib.ThumbnailSource(context.Background()) },
		Logger:    xlog.Component(config.Logger, "backend"),
		Invidious: instances.New(ctx, instances.Config{
			Backend: types.BackendInvidious,
			Cap:     config.InstanceCap,
			Store:   st,
			Logger:  xlog.Component(config.Logger, "instances"),
		}),
		Piped: instances.New(ctx, instances.Config{
			Backend: types.BackendPiped,
			Cap:     config.InstanceCap,
			Store:   st,
			Logger:  xlog.Component(config.Logger, "instances"),
		}),
	}

	var proxies *proxydir.Directory
	if !config.DisableProxies {
		proxies = proxydir.New(ctx, proxydir.Config{
			Static:    config.Proxies,
			RemoteURL: config.ProxyListURL,
			Store:     st,
			Client:    config.HTTPClient,
			Logger:    config.Logger,
		})
		deps.Proxies = proxies
	}
	if !config.DisableMinTubeList {
		if pool, ok := reg.Get(registry.PoolMinTube); ok {
			listURL := config.MinTubeListURL
			if listURL == "" {
				listURL = registry.DefaultMinTubeListURL
			}
			deps.MinTubeList = registry.NewRemoteList(listURL, pool, config.MinTubeAllowlist, fetcher,
				xlog.Component(config.Logger, "registry"))
		}
	}

	invidious := backend.NewInvidious(deps)
	piped := backend.NewPiped(deps)
	siawase := backend.NewSiawase(deps)

	stats := policy.NewStats(append(append([]string(nil), types.DefaultMetadataOrder...), types.DefaultStreamOrder...)...)
	priority := policy.NewStatic(ctx, st, types.DefaultStreamOrder)
	var streamPolicy policy.Selector = priority
	if config.Adaptive {
		streamPolicy = policy.NewAdaptive(stats, types.DefaultStreamOrder)
	}

	cacheCap := config.CacheCap
	if cacheCap <= 0 {
		cacheCap = cache.DefaultCap
	}
	streamTTL, metaTTL := config.StreamTTL, config.MetadataTTL
	if streamTTL <= 0 {
		streamTTL = cache.StreamTTL
	}
	if metaTTL <= 0 {
		metaTTL = cache.MetadataTTL
	}

	engine := orchestrator.NewEngine(orchestrator.Config{
		Streams: []backend.StreamAdapter{
			backend.NewChocoVideo(deps),
			backend.NewChocoStream(deps),
			backend.NewMinTube(deps),
			backend.NewEdgeFunction(deps),
			backend.NewPipedStreams(deps),
			backend.NewInvidiousStreams(deps),
			backend.NewCobalt(deps),
		},
		Metadata: []backend.MetadataAdapter{
			siawase,
			backend.NewEdu(deps),
			invidious,
			piped,
		},
		Listings:       []backend.ListingAdapter{backend.NewYouTube(deps), invidious, piped},
		Comments:       []backend.CommentsAdapter{invidious},
		Quick:          siawase,
		StreamPolicy:   streamPolicy,
		MetadataPolicy: policy.NewAdaptive(stats, types.DefaultMetadataOrder),
		Stats:          stats,
		StreamCache: cache.New(orchestrator.ChainStreams, streamTTL,
			cache.WithCap[*types.StreamDescriptor](cacheCap),
			cache.WithClone((*types.StreamDescriptor).Clone)),
		MetadataCache: cache.New(orchestrator.ChainMetadata, metaTTL,
			cache.WithCap[*types.VideoMetadata](cacheCap),
			cache.WithClone((*types.VideoMetadata).Clone)),
		Timeouts: config.Timeouts,
		Logger:   xlog.Component(config.Logger, "orchestrator"),
	})

	playerOpts := []fallback.Option{fallback.WithLogger(xlog.Component(config.Logger, "fallback"))}
	if config.PlayerInitial != "" {
		playerOpts = append(playerOpts, fallback.WithInitial(fallback.Player(config.PlayerInitial)))
	}

	return &Client{
		config:   config,
		store:    st,
		ownStore: ownStore,
		proxies:  proxies,
		priority: priority,
		engine:   engine,
		library:  lib,
		player:   fallback.New(playerOpts...),
		logger:   logger,
		closed:   make(chan struct{}),
	}, nil
}

func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	select {
	case <-c.closed:
		return nil, nil, ErrClosed
	default:
	}
	ctx, cancel := withDefaultTimeout(ctx, c.config.RequestTimeout)
	return ctx, cancel, nil
}

// ResolveVideo resolves playable streams for an id or video URL.
func (c *Client) ResolveVideo(ctx context.Context, input string) (*types.StreamDescriptor, error) {
	videoID, err := ExtractVideoID(input)
	if err != nil {
		return nil, err
	}
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.engine.ResolveVideo(ctx, videoID)
}

// ResolveMetadata resolves descriptive metadata for an id or video URL.
func (c *Client) ResolveMetadata(ctx context.Context, input string) (*types.VideoMetadata, error) {
	videoID, err := ExtractVideoID(input)
	if err != nil {
		return nil, err
	}
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.engine.ResolveMetadata(ctx, videoID)
}

// QuickMetadata returns cached metadata or a single cheap lookup.
func (c *Client) QuickMetadata(ctx context.Context, input string) (*types.VideoMetadata, error) {
	videoID, err := ExtractVideoID(input)
	if err != nil {
		return nil, err
	}
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.engine.QuickMetadata(ctx, videoID)
}

// Search returns videos matching query. Exhaustion yields an empty slice
// and ErrAllBackendsFailed.
func (c *Client) Search(ctx context.Context, query string) ([]types.VideoMetadata, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.engine.Search(ctx, query)
}

// Trending returns popular videos for region (default JP).
func (c *Client) Trending(ctx context.Context, region string) ([]types.VideoMetadata, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.engine.Trending(ctx, region)
}

// Comments returns the first comment page of a video.
func (c *Client) Comments(ctx context.Context, input string) (*types.CommentPage, error) {
	videoID, err := ExtractVideoID(input)
	if err != nil {
		return nil, err
	}
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.engine.Comments(ctx, videoID)
}

// BestStream resolves streams and picks the variant closest to the stored
// quality preference.
func (c *Client) BestStream(ctx context.Context, input string) (types.StreamVariant, error) {
	desc, err := c.ResolveVideo(ctx, input)
	if err != nil {
		return types.StreamVariant{}, err
	}
	v, ok := desc.Best(c.library.Quality(ctx))
	if !ok {
		return types.StreamVariant{}, ErrNoStreams
	}
	return v, nil
}

// Stats returns per-backend success counters.
func (c *Client) Stats() types.ApiStatsData { return c.engine.Stats() }

// ResetStats clears the success counters.
func (c *Client) ResetStats() { c.engine.ResetStats() }

// ClearCaches drops cached streams and metadata.
func (c *Client) ClearCaches() { c.engine.ClearCaches() }

// Priority returns the persisted stream priority list.
func (c *Client) Priority() *policy.Static { return c.priority }

// Proxies returns the relay directory, or nil when proxies are disabled.
func (c *Client) Proxies() *proxydir.Directory { return c.proxies }

// RefreshProxies reloads the remote relay list.
func (c *Client) RefreshProxies(ctx context.Context) []string {
	if c.proxies == nil {
		return nil
	}
	return c.proxies.Refresh(ctx)
}

// Library returns history, favorites and preferences.
func (c *Client) Library() *library.Library { return c.library }

// Player returns the player fallback state machine.
func (c *Client) Player() *fallback.Machine { return c.player }

// HTTPClient returns the outbound client.
func (c *Client) HTTPClient() *http.Client { return c.config.HTTPClient }

// Close stops pending player timers and closes a store opened by the client.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.player.Close()
		if c.ownStore {
			err = c.store.Close()
		}
		if err != nil {
			c.logger.Warn().Err(err).Msg("close store")
		}
	})
	return err
}
