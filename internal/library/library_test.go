package library

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famomatic/ytmirror/internal/store"
	"github.com/famomatic/ytmirror/internal/types"
)

func item(i int) Item {
	return Item{VideoID: fmt.Sprintf("vid%08d", i), Title: fmt.Sprint(i), Timestamp: int64(i)}
}

func TestHistoryDedupesAndCaps(t *testing.T) {
	ctx := context.Background()
	lib := New(store.NewMemory())

	for i := 0; i < HistoryCap+20; i++ {
		require.NoError(t, lib.AddHistory(ctx, item(i)))
	}
	require.NoError(t, lib.AddHistory(ctx, item(50)))

	h := lib.History(ctx)
	require.Len(t, h, HistoryCap)
	assert.Equal(t, item(50).VideoID, h[0].VideoID)
	assert.Equal(t, item(HistoryCap+19).VideoID, h[1].VideoID)
	seen := map[string]bool{}
	for _, it := range h {
		require.False(t, seen[it.VideoID], "duplicate %s", it.VideoID)
		seen[it.VideoID] = true
	}

	require.NoError(t, lib.ClearHistory(ctx))
	assert.Empty(t, lib.History(ctx))
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	lib := New(nil)
	require.NoError(t, lib.AddFavorite(ctx, item(1)))
	require.NoError(t, lib.AddFavorite(ctx, item(2)))
	require.NoError(t, lib.AddFavorite(ctx, item(1)))

	favs := lib.Favorites(ctx)
	require.Len(t, favs, 2)
	assert.Equal(t, item(1).VideoID, favs[0].VideoID)
	assert.True(t, lib.IsFavorite(ctx, item(2).VideoID))

	require.NoError(t, lib.RemoveFavorite(ctx, item(2).VideoID))
	assert.False(t, lib.IsFavorite(ctx, item(2).VideoID))
}

func TestCorruptListIsEmpty(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Set(ctx, KeyHistory, "{not json"))
	assert.Empty(t, New(st).History(ctx))
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	lib := New(nil)

	assert.Equal(t, DefaultQuality, lib.Quality(ctx))
	require.NoError(t, lib.SetQuality(ctx, "1080p"))
	assert.Equal(t, "1080p", lib.Quality(ctx))

	assert.Equal(t, types.ThumbnailYTImg, lib.ThumbnailSource(ctx))
	require.NoError(t, lib.SetThumbnailSource(ctx, types.ThumbnailYouTube))
	assert.Equal(t, types.ThumbnailYouTube, lib.ThumbnailSource(ctx))

	assert.False(t, lib.Authenticated(ctx))
	require.NoError(t, lib.SetAuthenticated(ctx, true))
	assert.True(t, lib.Authenticated(ctx))
	require.NoError(t, lib.SetAuthenticated(ctx, false))
	assert.False(t, lib.Authenticated(ctx))

	require.NoError(t, lib.SetLanguage(ctx, "ja"))
	assert.Equal(t, "ja", lib.Language(ctx))

	require.NoError(t, lib.Wipe(ctx))
	assert.Equal(t, "", lib.Language(ctx))
	assert.Equal(t, DefaultQuality, lib.Quality(ctx))
}
