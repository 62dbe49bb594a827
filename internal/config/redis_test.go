package config

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), &Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), &Config{RedisAddr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestNeedsRedis(t *testing.T) {
	assert.False(t, (&Config{TokenStore: "file"}).NeedsRedis())
	assert.True(t, (&Config{TokenStore: "redis"}).NeedsRedis())
	assert.True(t, (&Config{TokenStore: "file", CatalogCache: true}).NeedsRedis())
}
