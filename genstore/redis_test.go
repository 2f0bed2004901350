package genstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(RedisConfig{Client: client, Namespace: "app", TTL: ttl, CloseClient: true})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestRedisBumpAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t, 0)

	g, err := s.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), g)

	g, err = s.Bump(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), g)

	g, err = s.Bump(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), g)

	got, err := mr.Get("__cache_gen:app:k")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
	assert.Equal(t, time.Duration(0), mr.TTL("__cache_gen:app:k"))
}

func TestRedisBumpRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t, time.Minute)

	_, err := s.Bump(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("__cache_gen:app:k"))

	mr.FastForward(2 * time.Minute)
	g, err := s.Snapshot(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), g, "expired generation reads as 0")
}

func TestRedisSnapshotRejectsGarbage(t *testing.T) {
	s, mr := newRedis(t, 0)
	require.NoError(t, mr.Set("__cache_gen:app:k", "nope"))

	_, err := s.Snapshot(context.Background(), "k")
	assert.Error(t, err)
}
