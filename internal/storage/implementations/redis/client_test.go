package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/pkg/models"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(&RedisConfig{
		Addr:      mr.Addr(),
		TTL:       time.Minute,
		KeyPrefix: "test:",
	}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, cache.Connect(context.Background()))
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func createTestTable() *models.RawTable {
	return &models.RawTable{
		Columns: []string{"date", "sales"},
		Rows: []map[string]interface{}{
			{"date": "2024-01-01", "sales": 10.0},
			{"date": "2024-01-02", "sales": nil},
		},
	}
}

func TestNewRedisCache(t *testing.T) {
	config := &RedisConfig{Addr: "localhost:6379"}

	logger := logrus.New()
	cache, err := NewRedisCache(config, logger)

	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.Equal(t, logger, cache.logger)
	assert.Equal(t, 5*time.Minute, cache.config.TTL)
}

func TestNewRedisCacheInvalidConfig(t *testing.T) {
	_, err := NewRedisCache(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewRedisCache(&RedisConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")
}

func TestRedisCacheNotConnected(t *testing.T) {
	cache, err := NewRedisCache(&RedisConfig{Addr: "localhost:6379"}, nil)
	require.NoError(t, err)

	_, _, err = cache.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestRedisCacheGetSet(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", createTestTable()))
	assert.True(t, mr.Exists("test:k"))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"date", "sales"}, got.Columns)
	assert.Equal(t, 10.0, got.Rows[0]["sales"])
	assert.Nil(t, got.Rows[1]["sales"])
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)

	require.NoError(t, cache.Set(ctx, "k", createTestTable()))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := cache.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRedisCacheClearOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupTestCache(t)

	require.NoError(t, cache.Set(ctx, "a", createTestTable()))
	require.NoError(t, cache.Set(ctx, "b", createTestTable()))
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, cache.Clear(ctx))

	assert.False(t, mr.Exists("test:a"))
	assert.False(t, mr.Exists("test:b"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCacheStats(t *testing.T) {
	ctx := context.Background()
	cache, _ := setupTestCache(t)

	require.NoError(t, cache.Set(ctx, "a", createTestTable()))
	_, _, _ = cache.Get(ctx, "a")
	_, _, _ = cache.Get(ctx, "missing")

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}
