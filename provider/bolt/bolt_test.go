package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "cache.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestBoltRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	ok, err := p.Set(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	now = now.Add(2 * time.Minute)
	_, ok, err = p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire")

	_, err = p.Set(ctx, "forever", []byte("x"), 0)
	require.NoError(t, err)
	now = now.Add(1000 * time.Hour)
	_, ok, _ = p.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, p.Del(ctx, "forever"))
	_, ok, _ = p.Get(ctx, "forever")
	assert.False(t, ok)
}

func TestBoltAddRespectsExpiry(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	ok, err := p.Add(ctx, "lock", []byte("1"), 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Add(ctx, "lock", []byte("1"), 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Second)
	ok, err = p.Add(ctx, "lock", []byte("1"), 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoltIncrBy(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	n, err := p.IncrBy(ctx, "views", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	n, err = p.IncrBy(ctx, "views", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = p.Set(ctx, "doc", []byte("$j:{}"), 0)
	require.NoError(t, err)
	_, err = p.IncrBy(ctx, "doc", 1)
	assert.Error(t, err)
}

func TestBoltScan(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	for _, k := range []string{"a:post:1", "a:post:2", "a:page:1"} {
		_, err := p.Set(ctx, k, []byte("v"), 0)
		require.NoError(t, err)
	}
	var got []string
	require.NoError(t, p.Scan(ctx, "a:post:*", func(k string) error {
		got = append(got, k)
		return p.Del(ctx, k)
	}))
	assert.Equal(t, []string{"a:post:1", "a:post:2"}, got)
	_, ok, _ := p.Get(ctx, "a:post:1")
	assert.False(t, ok)
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilDB)
}

// stored reports whether key has a record in the file, expired or not.
func stored(t *testing.T, p *Provider, key string) bool {
	t.Helper()
	var ok bool
	require.NoError(t, p.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(p.bucket).Get([]byte(key)) != nil
		return nil
	}))
	return ok
}

func TestBoltDeletesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	for _, k := range []string{"a::neg", "b::neg", "c::neg", "__cache_lock:d"} {
		_, err := p.Set(ctx, k, []byte("$n"), time.Second)
		require.NoError(t, err)
	}
	_, err := p.Set(ctx, "keep", []byte("v"), 0)
	require.NoError(t, err)
	now = now.Add(time.Minute)

	_, ok, err := p.Get(ctx, "a::neg")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, stored(t, p, "a::neg"), "read must drop the expired record")

	var seen []string
	require.NoError(t, p.Scan(ctx, "b*", func(k string) error {
		seen = append(seen, k)
		return nil
	}))
	assert.Empty(t, seen)
	assert.False(t, stored(t, p, "b::neg"), "scan must drop expired records")
	assert.False(t, stored(t, p, "c::neg"), "scan drops expired records outside the pattern too")
	assert.False(t, stored(t, p, "__cache_lock:d"))

	for _, k := range []string{"e::neg", "__cache_lock:f"} {
		_, err := p.Set(ctx, k, []byte("1"), time.Second)
		require.NoError(t, err)
	}
	now = now.Add(time.Minute)
	n, err := p.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, stored(t, p, "__cache_lock:f"))
	assert.False(t, stored(t, p, "e::neg"))
	assert.True(t, stored(t, p, "keep"))
}
