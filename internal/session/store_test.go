package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "u1", "role": "user"}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "default.token")
	store := NewFileStore(path)

	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save(ctx, "abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx), "clearing twice is fine")
	token, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRedisStore_RoundTripWithExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "work")
	token := signedToken(t, time.Now().Add(time.Hour))

	require.NoError(t, store.Save(ctx, token))
	assert.True(t, mr.Exists("session:work"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("session:work").Seconds(), 5)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	mr.FastForward(2 * time.Hour)
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_OpaqueTokenHasNoTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "default")
	require.NoError(t, store.Save(ctx, "opaque"))
	assert.Zero(t, mr.TTL("session:default"))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists("session:default"))
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisStore(client, "default").Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get failed")
}

func TestExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, expired(signedToken(t, now.Add(-time.Minute)), now))
	assert.False(t, expired(signedToken(t, now.Add(time.Minute)), now))
	assert.False(t, expired(signedToken(t, time.Time{}), now))
	assert.False(t, expired("not-a-jwt", now))
}

func TestParseClaims(t *testing.T) {
	c, ok := parseClaims(signedToken(t, time.Unix(2000000000, 0)))
	require.True(t, ok)
	assert.Equal(t, "u1", c.Subject)
	assert.Equal(t, "user", c.Role)
	assert.Equal(t, int64(2000000000), c.ExpiresAt.Unix())
}
