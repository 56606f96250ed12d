// Package orchestrator walks prioritized backend chains with caching,
// single-flight de-duplication and per-backend statistics.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/backend"
	"github.com/famomatic/ytmirror/internal/cache"
	"github.com/famomatic/ytmirror/internal/policy"
	"github.com/famomatic/ytmirror/internal/types"
)

// Chain names used in logs and errors.
const (
	ChainStreams  = "streams"
	ChainMetadata = "metadata"
	ChainListing  = "listing"
	ChainComments = "comments"
)

// Config wires an Engine. Adapters are looked up by Name(); ids in a policy
// order without a matching adapter are skipped.
type Config struct {
	Streams  []backend.StreamAdapter
	Metadata []backend.MetadataAdapter
	Listings []backend.ListingAdapter
	Comments []backend.CommentsAdapter
	// Quick serves QuickMetadata on a metadata cache miss.
	Quick backend.MetadataAdapter

	StreamPolicy   policy.Selector
	MetadataPolicy policy.Selector
	ListingOrder   []string
	Stats          *policy.Stats

	StreamCache   *cache.Cache[*types.StreamDescriptor]
	MetadataCache *cache.Cache[*types.VideoMetadata]

	// Timeouts override Adapter.Timeout per backend id.
	Timeouts map[string]time.Duration
	Logger   zerolog.Logger
}

// Engine is the unified resolver. It is safe for concurrent use.
type Engine struct {
	streams      map[string]backend.StreamAdapter
	metadata     map[string]backend.MetadataAdapter
	listings     map[string]backend.ListingAdapter
	comments     map[string]backend.CommentsAdapter
	commentOrder []string
	quick        backend.MetadataAdapter

	streamPolicy   policy.Selector
	metadataPolicy policy.Selector
	listingOrder   []string
	stats          *policy.Stats

	streamCache *cache.Cache[*types.StreamDescriptor]
	metaCache   *cache.Cache[*types.VideoMetadata]

	timeouts map[string]time.Duration
	logger   zerolog.Logger
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		streams:        make(map[string]backend.StreamAdapter, len(cfg.Streams)),
		metadata:       make(map[string]backend.MetadataAdapter, len(cfg.Metadata)),
		listings:       make(map[string]backend.ListingAdapter, len(cfg.Listings)),
		comments:       make(map[string]backend.CommentsAdapter, len(cfg.Comments)),
		quick:          cfg.Quick,
		streamPolicy:   cfg.StreamPolicy,
		metadataPolicy: cfg.MetadataPolicy,
		listingOrder:   cfg.ListingOrder,
		stats:          cfg.Stats,
		streamCache:    cfg.StreamCache,
		metaCache:      cfg.MetadataCache,
		timeouts:       cfg.Timeouts,
		logger:         cfg.Logger,
	}
	var streamIDs []string
	for _, a := range cfg.Streams {
		e.streams[a.Name()] = a
		streamIDs = append(streamIDs, a.Name())
	}
	var metaIDs []string
	for _, a := range cfg.Metadata {
		e.metadata[a.Name()] = a
		metaIDs = append(metaIDs, a.Name())
	}
	for _, a := range cfg.Listings {
		e.listings[a.Name()] = a
	}
	for _, a := range cfg.Comments {
		e.comments[a.Name()] = a
		e.commentOrder = append(e.commentOrder, a.Name())
	}

	if e.streamPolicy == nil {
		e.streamPolicy = policy.Fixed(streamIDs)
	}
	if e.stats == nil {
		e.stats = policy.NewStats(append(append([]string(nil), types.DefaultMetadataOrder...), types.DefaultStreamOrder...)...)
	}
	if e.metadataPolicy == nil {
		e.metadataPolicy = policy.NewAdaptive(e.stats, metaIDs)
	}
	if len(e.listingOrder) == 0 {
		e.listingOrder = types.ListingOrder
	}
	if e.streamCache == nil {
		e.streamCache = cache.New[*types.StreamDescriptor]("streams", cache.StreamTTL,
			cache.WithClone((*types.StreamDescriptor).Clone))
	}
	if e.metaCache == nil {
		e.metaCache = cache.New[*types.VideoMetadata]("metadata", cache.MetadataTTL,
			cache.WithClone((*types.VideoMetadata).Clone))
	}
	return e
}

// step is one backend call of a chain walk.
type step[T any] struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) (T, error)
}

func (e *Engine) timeoutFor(a backend.Adapter) time.Duration {
	if d, ok := e.timeouts[a.Name()]; ok && d > 0 {
		return d
	}
	return a.Timeout()
}

// walk tries steps in order. Each step runs under its own timeout; check
// turns an answered-but-unusable result into a failure. Every attempt is
// recorded in the stats.
func walk[T any](ctx context.Context, e *Engine, chain string, steps []step[T], check func(T) error) (T, error) {
	var zero T
	if len(steps) == 0 {
		return zero, types.ErrNoBackends
	}
	var attempts []AttemptError
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		start := time.Now()
		sctx, cancel := context.WithTimeout(types.WithBackendName(ctx, s.name), s.timeout)
		v, err := s.run(sctx)
		cancel()
		if err == nil {
			err = check(v)
		}
		elapsed := time.Since(start)
		if err != nil {
			e.stats.Record(s.name, false, elapsed)
			e.logger.Debug().
				Str("chain", chain).
				Str("backend", s.name).
				Dur("elapsed", elapsed).
				Err(err).
				Msg("backend failed")
			attempts = append(attempts, AttemptError{Backend: s.name, Err: err})
			continue
		}
		e.stats.Record(s.name, true, elapsed)
		e.logger.Debug().
			Str("chain", chain).
			Str("backend", s.name).
			Dur("elapsed", elapsed).
			Msg("backend succeeded")
		return v, nil
	}
	e.logger.Warn().Str("chain", chain).Int("attempts", len(attempts)).Msg("all backends failed")
	return zero, &AllBackendsFailedError{Chain: chain, Attempts: attempts}
}

func checkID(videoID string) error {
	if !types.ValidVideoID(videoID) {
		return types.ErrInvalidVideoID
	}
	return nil
}

// ResolveVideo returns playable streams for videoID. Cache hits carry
// Source "cache". Concurrent calls for the same id share one walk.
func (e *Engine) ResolveVideo(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	if err := checkID(videoID); err != nil {
		return nil, err
	}
	if d, ok := e.streamCache.Get(videoID); ok {
		d.Source = types.SourceCache
		return d, nil
	}
	return e.streamCache.GetOrFetch(ctx, videoID, e.walkStreams)
}

func (e *Engine) walkStreams(ctx context.Context, videoID string) (*types.StreamDescriptor, error) {
	var steps []step[*types.StreamDescriptor]
	for _, id := range e.streamPolicy.Order() {
		a, ok := e.streams[id]
		if !ok {
			continue
		}
		steps = append(steps, step[*types.StreamDescriptor]{
			name:    id,
			timeout: e.timeoutFor(a),
			run: func(ctx context.Context) (*types.StreamDescriptor, error) {
				return a.Streams(ctx, videoID)
			},
		})
	}
	return walk(ctx, e, ChainStreams, steps, func(d *types.StreamDescriptor) error {
		return d.Validate()
	})
}

// ResolveMetadata returns descriptive metadata for videoID and warms the
// metadata cache for its first recommendations in the background.
func (e *Engine) ResolveMetadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	if err := checkID(videoID); err != nil {
		return nil, err
	}
	if m, ok := e.metaCache.Get(videoID); ok {
		m.Source = types.SourceCache
		return m, nil
	}
	m, err := e.metaCache.GetOrFetch(ctx, videoID, e.walkMetadata)
	if err != nil {
		return nil, err
	}
	if len(m.Recommended) > 0 {
		ids := make([]string, 0, cache.DefaultPrefetch)
		for _, r := range m.Recommended {
			if types.ValidVideoID(r.VideoID) {
				ids = append(ids, r.VideoID)
			}
		}
		e.metaCache.Prefetch(context.WithoutCancel(ctx), ids, e.walkMetadata)
	}
	return m, nil
}

func (e *Engine) walkMetadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	var steps []step[*types.VideoMetadata]
	for _, id := range e.metadataPolicy.Order() {
		a, ok := e.metadata[id]
		if !ok {
			continue
		}
		steps = append(steps, step[*types.VideoMetadata]{
			name:    id,
			timeout: e.timeoutFor(a),
			run: func(ctx context.Context) (*types.VideoMetadata, error) {
				return a.Metadata(ctx, videoID)
			},
		})
	}
	return walk(ctx, e, ChainMetadata, steps, func(m *types.VideoMetadata) error {
		if m == nil || m.Title == "" {
			return types.ErrEmptyResult
		}
		if m.VideoID == "" {
			m.VideoID = videoID
		}
		return nil
	})
}

// QuickMetadata returns cached metadata when present, otherwise the
// lightweight record of the quick source. The result is not cached.
func (e *Engine) QuickMetadata(ctx context.Context, videoID string) (*types.VideoMetadata, error) {
	if err := checkID(videoID); err != nil {
		return nil, err
	}
	if m, ok := e.metaCache.Get(videoID); ok {
		m.Source = types.SourceCache
		return m, nil
	}
	if e.quick == nil {
		return nil, types.ErrNoBackends
	}
	qctx, cancel := context.WithTimeout(ctx, e.timeoutFor(e.quick))
	defer cancel()
	return e.quick.Metadata(qctx, videoID)
}

// Search walks the listing chain. Empty results move on to the next
// backend; on exhaustion an empty slice is returned with the error.
func (e *Engine) Search(ctx context.Context, query string) ([]types.VideoMetadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []types.VideoMetadata{}, nil
	}
	return e.walkListing(ctx, func(ctx context.Context, a backend.ListingAdapter) ([]types.VideoMetadata, error) {
		return a.Search(ctx, query)
	})
}

// Trending walks the listing chain for a region (default JP).
func (e *Engine) Trending(ctx context.Context, region string) ([]types.VideoMetadata, error) {
	if region == "" {
		region = backend.DefaultRegion
	}
	return e.walkListing(ctx, func(ctx context.Context, a backend.ListingAdapter) ([]types.VideoMetadata, error) {
		return a.Trending(ctx, region)
	})
}

func (e *Engine) walkListing(ctx context.Context, call func(context.Context, backend.ListingAdapter) ([]types.VideoMetadata, error)) ([]types.VideoMetadata, error) {
	var steps []step[[]types.VideoMetadata]
	for _, id := range e.listingOrder {
		a, ok := e.listings[id]
		if !ok {
			continue
		}
		steps = append(steps, step[[]types.VideoMetadata]{
			name:    id,
			timeout: e.timeoutFor(a),
			run: func(ctx context.Context) ([]types.VideoMetadata, error) {
				return call(ctx, a)
			},
		})
	}
	out, err := walk(ctx, e, ChainListing, steps, func(v []types.VideoMetadata) error {
		if len(v) == 0 {
			return types.ErrEmptyResult
		}
		return nil
	})
	if err != nil {
		return []types.VideoMetadata{}, err
	}
	return out, nil
}

// Comments returns the first page of comments for videoID.
func (e *Engine) Comments(ctx context.Context, videoID string) (*types.CommentPage, error) {
	if err := checkID(videoID); err != nil {
		return nil, err
	}
	var steps []step[*types.CommentPage]
	for _, id := range e.commentOrder {
		a := e.comments[id]
		steps = append(steps, step[*types.CommentPage]{
			name:    id,
			timeout: e.timeoutFor(a),
			run: func(ctx context.Context) (*types.CommentPage, error) {
				return a.Comments(ctx, videoID)
			},
		})
	}
	return walk(ctx, e, ChainComments, steps, func(p *types.CommentPage) error {
		if p == nil {
			return types.ErrEmptyResult
		}
		return nil
	})
}

// Stats returns a snapshot of the per-backend counters.
func (e *Engine) Stats() types.ApiStatsData { return e.stats.Snapshot() }

// ResetStats clears the per-backend counters.
func (e *Engine) ResetStats() { e.stats.Reset() }

// ClearCaches drops every cached stream and metadata record.
func (e *Engine) ClearCaches() {
	e.streamCache.Clear()
	e.metaCache.Clear()
}

// CacheStats reports the stream and metadata cache counters.
func (e *Engine) CacheStats() (streams, metadata cache.Stats) {
	return e.streamCache.Stats(), e.metaCache.Stats()
}
