package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return mr, p
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestRedisGetSetDel(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestProvider(t)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must miss")

	_, err = p.Set(ctx, "forever", []byte("x"), 0)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("forever"))

	require.NoError(t, p.Del(ctx, "forever"))
	require.NoError(t, p.Del(ctx, "missing"))
	assert.False(t, mr.Exists("forever"))
}

func TestRedisAdd(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestProvider(t)

	ok, err := p.Add(ctx, "lock", []byte("1"), 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Add(ctx, "lock", []byte("1"), 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok, "second add must lose")

	mr.FastForward(100 * time.Millisecond)
	ok, err = p.Add(ctx, "lock", []byte("1"), 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "lock self-expires")
}

func TestRedisIncrBy(t *testing.T) {
	ctx := context.Background()
	_, p := newTestProvider(t)

	n, err := p.IncrBy(ctx, "views", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = p.IncrBy(ctx, "views", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisScan(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestProvider(t)

	for _, k := range []string{"app:post:1", "app:post:2", "app:page:1", "other:post:1"} {
		require.NoError(t, mr.Set(k, "v"))
	}
	var got []string
	err := p.Scan(ctx, "app:post:*", func(k string) error {
		got = append(got, k)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"app:post:1", "app:post:2"}, got)
}

func TestRedisErrorsSurface(t *testing.T) {
	ctx := context.Background()
	mr, p := newTestProvider(t)
	mr.Close()

	_, ok, err := p.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
}
