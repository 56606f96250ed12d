// Package backend adapts each mirror API family to the common stream,
// metadata and listing shapes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytmirror/internal/instances"
	"github.com/famomatic/ytmirror/internal/proxydir"
	"github.com/famomatic/ytmirror/internal/race"
	"github.com/famomatic/ytmirror/internal/registry"
	"github.com/famomatic/ytmirror/internal/types"
)

// Adapter is the part shared by every backend.
type Adapter interface {
	Name() string
	// Timeout bounds one call of the adapter, including its internal races.
	Timeout() time.Duration
}

// StreamAdapter resolves playable streams.
type StreamAdapter interface {
	Adapter
	Streams(ctx context.Context, videoID string) (*types.StreamDescriptor, error)
}

// MetadataAdapter resolves descriptive metadata.
type MetadataAdapter interface {
	Adapter
	Metadata(ctx context.Context, videoID string) (*types.VideoMetadata, error)
}

// ListingAdapter serves search and trending.
type ListingAdapter interface {
	Adapter
	Search(ctx context.Context, query string) ([]types.VideoMetadata, error)
	Trending(ctx context.Context, region string) ([]types.VideoMetadata, error)
}

// CommentsAdapter serves comment pages.
type CommentsAdapter interface {
	Adapter
	Comments(ctx context.Context, videoID string) (*types.CommentPage, error)
}

// DefaultRegion is used for trending when none is given.
const DefaultRegion = "JP"

// Endpoints holds the fixed URLs of single-endpoint backends.
type Endpoints struct {
	ChocoVideo  string
	ChocoStream string
	ChocoM3U8   string
	EdgeURL     string
	EdgeKey     string
	Edu         string
	Siawase     string
	OEmbed      []string
	YouTubeAPI  string
}

// DefaultEndpoints are the built-in single-endpoint URLs.
var DefaultEndpoints = Endpoints{
	ChocoVideo:  "https://siawaseok.duckdns.org/api/video2/",
	ChocoStream: "https://ytdl-0et1.onrender.com/stream/",
	ChocoM3U8:   "https://ytdl-0et1.onrender.com/m3u8/",
	Edu:         "https://vid.puffyan.us/api/v1/videos/",
	Siawase:     "https://siawaseok.duckdns.org/api/video2",
	OEmbed: []string{
		"https://noembed.com/embed?url=https://www.youtube.com/watch?v=",
		"https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=",
	},
	YouTubeAPI: "https://www.googleapis.com/youtube/v3",
}

// withDefaults fills empty fields from DefaultEndpoints. Edge settings have
// no default.
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints
	if e.ChocoVideo == "" {
		e.ChocoVideo = d.ChocoVideo
	}
	if e.ChocoStream == "" {
		e.ChocoStream = d.ChocoStream
	}
	if e.ChocoM3U8 == "" {
		e.ChocoM3U8 = d.ChocoM3U8
	}
	if e.Edu == "" {
		e.Edu = d.Edu
	}
	if e.Siawase == "" {
		e.Siawase = d.Siawase
	}
	if len(e.OEmbed) == 0 {
		e.OEmbed = d.OEmbed
	}
	if e.YouTubeAPI == "" {
		e.YouTubeAPI = d.YouTubeAPI
	}
	return e
}

// Deps are the collaborators adapters share. One Deps belongs to one
// resolver instance.
type Deps struct {
	Fetcher     *race.Fetcher
	Proxies     *proxydir.Directory
	Registry    *registry.Registry
	Keys        *registry.KeyPool
	MinTubeList *registry.RemoteList
	Invidious   *instances.Memory
	Piped       *instances.Memory
	Endpoints   Endpoints
	// Thumbnail returns the preferred thumbnail host.
	Thumbnail func() types.ThumbnailHost
	Logger    zerolog.Logger
}

func (d *Deps) thumbHost() types.ThumbnailHost {
	if d.Thumbnail == nil {
		return types.ThumbnailYTImg
	}
	return d.Thumbnail()
}

func (d *Deps) relays() []string {
	return d.Registry.Hosts(registry.PoolStreamRelays)
}

// BackendError reports why one adapter produced nothing.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string { return fmt.Sprintf("%s: %v", e.Backend, e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

func fail(backend string, err error) error {
	return &BackendError{Backend: backend, Err: err}
}

func failf(backend, format string, args ...any) error {
	return &BackendError{Backend: backend, Err: fmt.Errorf(format, args...)}
}

// ErrNotConfigured is returned by adapters missing required settings.
var ErrNotConfigured = errors.New("backend not configured")

// primaryVariant describes a single "best" URL returned by a direct API.
func primaryVariant(url string, live bool) types.StreamVariant {
	container, isHLS, isDASH := types.ClassifyURL(url)
	return types.StreamVariant{
		URL:       url,
		Quality:   "Best",
		Container: container,
		HasAudio:  true,
		HasVideo:  true,
		IsHLS:     isHLS,
		IsDASH:    isDASH,
		IsLive:    live,
	}
}

func hlsVariant(url string, live bool) types.StreamVariant {
	return types.StreamVariant{
		URL:       url,
		Quality:   "Auto (HLS)",
		Container: "m3u8",
		HasAudio:  true,
		HasVideo:  true,
		IsHLS:     true,
		IsLive:    live,
	}
}

func combinedVariant(url, quality, container string) types.StreamVariant {
	if quality == "" {
		quality = "Unknown"
	}
	if container == "" {
		container = "mp4"
	}
	return types.StreamVariant{URL: url, Quality: quality, Container: container, HasAudio: true, HasVideo: true}
}

// finish validates a descriptor and stamps its source.
func finish(backend string, d *types.StreamDescriptor) (*types.StreamDescriptor, error) {
	d.Source = backend
	if d.HLSURL == "" {
		for _, s := range d.Streams {
			if s.IsHLS {
				d.HLSURL = s.URL
				break
			}
		}
	}
	if d.DASHURL == "" {
		for _, s := range d.Streams {
			if s.IsDASH {
				d.DASHURL = s.URL
				break
			}
		}
	}
	if len(d.Streams) == 0 {
		return nil, fail(backend, types.ErrNoStreams)
	}
	if err := d.Validate(); err != nil {
		return nil, fail(backend, err)
	}
	return d, nil
}
