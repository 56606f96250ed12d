// Package api serves resolution results and diagnostics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	xlog "github.com/famomatic/ytmirror/internal/log"
	"github.com/famomatic/ytmirror/internal/types"
)

// Resolver is the resolution surface the API exposes.
type Resolver interface {
	ResolveVideo(ctx context.Context, videoID string) (*types.StreamDescriptor, error)
	ResolveMetadata(ctx context.Context, videoID string) (*types.VideoMetadata, error)
	QuickMetadata(ctx context.Context, videoID string) (*types.VideoMetadata, error)
	Search(ctx context.Context, query string) ([]types.VideoMetadata, error)
	Trending(ctx context.Context, region string) ([]types.VideoMetadata, error)
	Comments(ctx context.Context, videoID string) (*types.CommentPage, error)
	Stats() types.ApiStatsData
	ResetStats()
}

// Priority is the editable stream priority list.
type Priority interface {
	Order() []string
	Set(ctx context.Context, order []string) ([]string, error)
	Reset(ctx context.Context) ([]string, error)
}

// ProxyRefresher forces a reload of the remote proxy list.
type ProxyRefresher interface {
	Refresh(ctx context.Context) []string
}

// Config wires the server. Priority and Proxies are optional.
type Config struct {
	Resolver Resolver
	Priority Priority
	Proxies  ProxyRefresher
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
	Logger    *zerolog.Logger
}

type Server struct {
	resolver Resolver
	priority Priority
	proxies  ProxyRefresher
	logger   zerolog.Logger
	router   chi.Router
}

// New builds the router.
func New(cfg Config) *Server {
	s := &Server{
		resolver: cfg.Resolver,
		priority: cfg.Priority,
		proxies:  cfg.Proxies,
		logger:   xlog.Component(cfg.Logger, "api"),
	}

	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(requestID)
	r.Use(accessLog(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(rateLimit(cfg.RateLimit))
		}
		r.Get("/streams/{id}", s.handleStreams)
		r.Get("/videos/{id}", s.handleVideo)
		r.Get("/videos/{id}/comments", s.handleComments)
		r.Get("/search", s.handleSearch)
		r.Get("/trending", s.handleTrending)
		r.Get("/stats", s.handleStats)
		r.Delete("/stats", s.handleResetStats)
		r.Get("/priority", s.handleGetPriority)
		r.Put("/priority", s.handlePutPriority)
		r.Delete("/priority", s.handleResetPriority)
		r.Post("/proxies/refresh", s.handleRefreshProxies)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeResolveError maps resolver errors onto status codes. Exhaustion tells
// the caller to fall back to an embedded player.
func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidVideoID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrAllBackendsFailed), errors.Is(err, types.ErrNoBackends):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":    "all backends failed",
			"fallback": "embed",
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timed out")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		s.logger.Warn().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("resolve failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
