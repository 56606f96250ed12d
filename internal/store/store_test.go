package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := OpenFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	badgerStore, err := OpenBadger("")
	require.NoError(t, err)
	sqliteStore, err := OpenSQLite(filepath.Join(dir, "state.db"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisStore := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	stores := map[string]Store{
		"memory": NewMemory(),
		"file":   fileStore,
		"badger": badgerStore,
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "tube_quality", "1080p"))
			v, ok, err := s.Get(ctx, "tube_quality")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1080p", v)

			require.NoError(t, s.Set(ctx, "tube_quality", "480p"))
			v, _, _ = s.Get(ctx, "tube_quality")
			assert.Equal(t, "480p", v)

			require.NoError(t, s.Delete(ctx, "tube_quality"))
			_, ok, err = s.Get(ctx, "tube_quality")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Delete(ctx, "never-set"))
		})
	}
}

func TestJSONHelpersTreatCorruptValueAsMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "tube_history", "{not json"))

	var out []string
	assert.False(t, GetJSON(ctx, s, "tube_history", &out))

	require.NoError(t, SetJSON(ctx, s, "tube_history", []string{"a", "b"}))
	require.True(t, GetJSON(ctx, s, "tube_history", &out))
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestTimeHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	assert.True(t, GetTime(ctx, s, "ts").IsZero())

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, SetTime(ctx, s, "ts", now))
	assert.True(t, now.Equal(GetTime(ctx, s, "ts")))

	require.NoError(t, s.Set(ctx, "ts", "garbage"))
	assert.True(t, GetTime(ctx, s, "ts").IsZero())
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "tube_language", "ja"))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "tube_language")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ja", v)
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("]]"), 0o600))

	s, err := OpenFile(path)
	require.NoError(t, err)
	_, ok, err := s.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}
