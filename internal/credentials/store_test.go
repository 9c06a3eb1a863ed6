package credentials

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

// exerciseStore runs the shared Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	cred := Credential{AccessToken: "T1", RefreshToken: "R1", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	require.NoError(t, s.Save(ctx, cred))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred, got)

	next := Credential{AccessToken: "T2", TokenType: "Bearer"}
	require.NoError(t, s.Save(ctx, next))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got, "save replaces the credential wholesale")

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Clear(ctx), "clearing an empty store is not an error")

	assert.NotEmpty(t, s.Name())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), Credential{AccessToken: "T1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStorePathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "from-env.json")
	t.Setenv("STOREFRONT_CREDS_PATH", path)

	s, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exerciseStore(t, NewRedisStore(rdb, "", 0))
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStore(rdb, "shop:cred", time.Minute)
	require.NoError(t, s.Save(context.Background(), Credential{AccessToken: "T1"}))
	assert.Equal(t, time.Minute, mr.TTL("shop:cred"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewRedisStore(rdb, "", 0).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
