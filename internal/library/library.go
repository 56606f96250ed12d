// Package library keeps per-user state in the key-value store: watch
// history, favorites and viewing preferences.
package library

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/famomatic/ytmirror/internal/store"
	"github.com/famomatic/ytmirror/internal/types"
)

// Store keys.
const (
	KeyAuth            = "tube_auth"
	KeyLanguage        = "tube_language"
	KeyHistory         = "tube_history"
	KeyFavorites       = "tube_favorites"
	KeyQuality         = "tube_quality"
	KeyThumbnailSource = "tube_thumbnail_source"
)

const (
	// HistoryCap bounds the watch history.
	HistoryCap = 100
	// DefaultQuality is used until a preference is saved.
	DefaultQuality = "720p"
)

// Item is a history or favorites entry.
type Item struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
	// Timestamp is in milliseconds since the epoch.
	Timestamp int64 `json:"timestamp"`
	Duration  int   `json:"duration"`
}

// ItemFrom builds an entry from resolved metadata.
func ItemFrom(m *types.VideoMetadata, at time.Time) Item {
	return Item{
		VideoID:   m.VideoID,
		Title:     m.Title,
		Author:    m.Author,
		Thumbnail: m.Thumbnail,
		Timestamp: at.UnixMilli(),
		Duration:  m.LengthSeconds,
	}
}

// Library serializes read-modify-write cycles on its lists.
type Library struct {
	store store.Store
	mu    sync.Mutex
}

func New(st store.Store) *Library {
	if st == nil {
		st = store.NewMemory()
	}
	return &Library{store: st}
}

func (l *Library) list(ctx context.Context, key string) []Item {
	var items []Item
	if !store.GetJSON(ctx, l.store, key, &items) || items == nil {
		return []Item{}
	}
	return items
}

// prepend puts item first, removing older entries for the same video.
func prepend(items []Item, item Item, limit int) []Item {
	out := make([]Item, 0, len(items)+1)
	out = append(out, item)
	for _, it := range items {
		if it.VideoID != item.VideoID {
			out = append(out, it)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// History returns the watch history, most recent first.
func (l *Library) History(ctx context.Context) []Item {
	return l.list(ctx, KeyHistory)
}

// AddHistory records a watched video.
func (l *Library) AddHistory(ctx context.Context, item Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.SetJSON(ctx, l.store, KeyHistory, prepend(l.list(ctx, KeyHistory), item, HistoryCap))
}

func (l *Library) ClearHistory(ctx context.Context) error {
	return l.store.Delete(ctx, KeyHistory)
}

// Favorites returns favorites, most recently added first.
func (l *Library) Favorites(ctx context.Context) []Item {
	return l.list(ctx, KeyFavorites)
}

func (l *Library) AddFavorite(ctx context.Context, item Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.SetJSON(ctx, l.store, KeyFavorites, prepend(l.list(ctx, KeyFavorites), item, 0))
}

func (l *Library) RemoveFavorite(ctx context.Context, videoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.list(ctx, KeyFavorites)
	out := items[:0]
	for _, it := range items {
		if it.VideoID != videoID {
			out = append(out, it)
		}
	}
	return store.SetJSON(ctx, l.store, KeyFavorites, out)
}

func (l *Library) IsFavorite(ctx context.Context, videoID string) bool {
	for _, it := range l.list(ctx, KeyFavorites) {
		if it.VideoID == videoID {
			return true
		}
	}
	return false
}

func (l *Library) get(ctx context.Context, key string) string {
	v, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return ""
	}
	return v
}

// Authenticated reports whether the auth flag is set.
func (l *Library) Authenticated(ctx context.Context) bool {
	return l.get(ctx, KeyAuth) == "true"
}

func (l *Library) SetAuthenticated(ctx context.Context, v bool) error {
	if !v {
		return l.store.Delete(ctx, KeyAuth)
	}
	return l.store.Set(ctx, KeyAuth, "true")
}

// Language returns the stored UI language, or "".
func (l *Library) Language(ctx context.Context) string {
	return l.get(ctx, KeyLanguage)
}

func (l *Library) SetLanguage(ctx context.Context, lang string) error {
	return l.store.Set(ctx, KeyLanguage, strings.TrimSpace(lang))
}

// Quality returns the preferred quality label.
func (l *Library) Quality(ctx context.Context) string {
	if q := l.get(ctx, KeyQuality); q != "" {
		return q
	}
	return DefaultQuality
}

func (l *Library) SetQuality(ctx context.Context, q string) error {
	return l.store.Set(ctx, KeyQuality, strings.TrimSpace(q))
}

// ThumbnailSource returns the preferred thumbnail host.
func (l *Library) ThumbnailSource(ctx context.Context) types.ThumbnailHost {
	if h := types.ThumbnailHost(l.get(ctx, KeyThumbnailSource)); h.Valid() {
		return h
	}
	return types.ThumbnailYTImg
}

func (l *Library) SetThumbnailSource(ctx context.Context, h types.ThumbnailHost) error {
	if !h.Valid() {
		h = types.ThumbnailYTImg
	}
	return l.store.Set(ctx, KeyThumbnailSource, string(h))
}

// Wipe deletes every library key.
func (l *Library) Wipe(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, key := range []string{KeyAuth, KeyLanguage, KeyHistory, KeyFavorites, KeyQuality, KeyThumbnailSource} {
		g.Go(func() error { return l.store.Delete(ctx, key) })
	}
	return g.Wait()
}
