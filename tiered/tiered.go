// Package tiered puts a small in-process L1 map in front of a rescache
// Cache (the L2). Keys are organized in groups, each with its own key
// prefix and its own L1 and L2 TTLs.
package tiered

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/genstore"
	"github.com/unkn0wn-root/rescache/internal/util"
)

const (
	DefaultMaxEntries = 1000
	DefaultL1TTL      = time.Minute
)

// Group configures one key family. A zero L1TTL uses DefaultL1TTL; a zero
// L2TTL uses the runtime's default TTL.
type Group struct {
	Prefix string
	L1TTL  time.Duration
	L2TTL  time.Duration
}

type Options[V any] struct {
	// Groups are looked up by name. Unknown names get Group{Prefix: name + ":"}.
	Groups     map[string]Group
	MaxEntries int // L1 ceiling; oldest-inserted entries are evicted first
	Codec      codec.Codec[V]
	GenStore   genstore.Store
	Now        func() time.Time
}

// Stats counts where Get calls were answered.
type Stats struct {
	L1Hits     uint64
	L2Hits     uint64
	Misses     uint64
	Recomputes uint64
}

type Cache[V any] struct {
	rt     *rescache.Runtime
	opts   Options[V]
	l1     *l1[V]
	gen    genstore.Store
	ownGen bool
	sf     singleflight.Group

	mu     sync.Mutex
	groups map[string]*group[V]

	l1Hits, l2Hits, misses, recomputes atomic.Uint64
}

type group[V any] struct {
	Group
	l2 *rescache.Cache[V]
}

type result[V any] struct {
	v  V
	ok bool
}

func New[V any](rt *rescache.Runtime, opts Options[V]) (*Cache[V], error) {
	if rt == nil {
		return nil, errors.New("tiered: runtime is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache[V]{
		rt:     rt,
		opts:   opts,
		l1:     newL1[V](maxEntries, now),
		gen:    opts.GenStore,
		groups: make(map[string]*group[V]),
	}
	if c.gen == nil {
		c.gen = genstore.NewLocal(time.Hour, 24*time.Hour)
		c.ownGen = true
	}
	return c, nil
}

func (c *Cache[V]) group(name string) (*group[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.groups[name]; ok {
		return g, nil
	}
	cfg, ok := c.opts.Groups[name]
	if !ok {
		cfg = Group{Prefix: name + ":"}
	}
	if cfg.L1TTL == 0 {
		cfg.L1TTL = DefaultL1TTL
	}
	l2, err := rescache.New[V](c.rt, rescache.Options[V]{
		Codec:      c.opts.Codec,
		GenStore:   c.gen,
		Prefix:     cfg.Prefix,
		DefaultTTL: cfg.L2TTL,
	})
	if err != nil {
		return nil, err
	}
	g := &group[V]{Group: cfg, l2: l2}
	c.groups[name] = g
	return g, nil
}

// l1TTL never lets L1 outlive an explicit shorter TTL.
func l1TTL[V any](g *group[V], ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < g.L1TTL {
		return ttl
	}
	return g.L1TTL
}

// Get answers from L1, then L2. On a miss with a non-nil recompute it runs
// the L2 Remember path (stampede guard, negative caching) and writes the
// result through both tiers. Concurrent misses for the same key in this
// process share one L2 round trip. ok is false on a miss and for negative
// (empty) results. ttl overrides the group's L2 TTL when > 0.
func (c *Cache[V]) Get(ctx context.Context, key, groupName string, recompute func(context.Context) (V, error), ttl time.Duration) (V, bool, error) {
	var zero V
	g, err := c.group(groupName)
	if err != nil {
		return zero, false, err
	}
	k := g.Prefix + key
	if v, ok := c.l1.get(k); ok {
		c.l1Hits.Add(1)
		return v, true, nil
	}

	// a coalesced caller retries once when the shared call died of the
	// leader's context while its own is still live
	for attempt := 0; ; attempt++ {
		ch := c.sf.DoChan(k, func() (any, error) {
			lctx, cancel := detach(ctx)
			defer cancel()
			return c.load(lctx, g, k, key, recompute, ttl)
		})
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				if attempt == 0 && ctx.Err() == nil && isContextErr(r.Err) {
					continue
				}
				return zero, false, r.Err
			}
			res := r.Val.(result[V])
			return res.v, res.ok, nil
		}
	}
}

func (c *Cache[V]) load(ctx context.Context, g *group[V], k, key string, recompute func(context.Context) (V, error), ttl time.Duration) (result[V], error) {
	v, st, err := g.l2.Lookup(ctx, key)
	if err != nil {
		return result[V]{}, err
	}
	switch {
	case st == rescache.Hit:
		c.l2Hits.Add(1)
		c.l1.set(k, v, l1TTL(g, ttl))
		return result[V]{v: v, ok: true}, nil
	case st == rescache.NegativeHit || recompute == nil:
		c.misses.Add(1)
		return result[V]{}, nil
	}

	c.misses.Add(1)
	v, err = g.l2.Remember(ctx, key, ttl, func(ctx context.Context) (V, error) {
		c.recomputes.Add(1)
		return recompute(ctx)
	})
	if err != nil {
		return result[V]{}, err
	}
	if rescache.IsNegative(v) {
		return result[V]{v: v}, nil
	}
	c.l1.set(k, v, l1TTL(g, ttl))
	return result[V]{v: v, ok: true}, nil
}

// detach keeps the leader's values and deadline but not its cancellation,
// so one caller giving up does not fail the others sharing the call.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	d := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(d, dl)
	}
	return d, func() {}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Set writes through both tiers.
func (c *Cache[V]) Set(ctx context.Context, key, groupName string, v V, ttl time.Duration) (bool, error) {
	g, err := c.group(groupName)
	if err != nil {
		return false, err
	}
	k := g.Prefix + key
	ok, err := g.l2.Set(ctx, key, v, ttl)
	if err != nil || !ok || rescache.IsNegative(v) {
		c.l1.del(k)
		return ok, err
	}
	c.l1.set(k, v, l1TTL(g, ttl))
	return true, nil
}

func (c *Cache[V]) Delete(ctx context.Context, key, groupName string) (bool, error) {
	g, err := c.group(groupName)
	if err != nil {
		return false, err
	}
	c.l1.del(g.Prefix + key)
	return g.l2.Delete(ctx, key)
}

// Increment adjusts a native backend counter stored under the group's key.
// Counters bypass the codec and L1; they fail with
// rescache.ErrCounterUnsupported when the active driver (including the
// degraded no-op driver) has no counters.
func (c *Cache[V]) Increment(ctx context.Context, key, groupName string, delta int64) (int64, error) {
	g, err := c.group(groupName)
	if err != nil {
		return 0, err
	}
	c.l1.del(g.Prefix + key)
	sk := util.StorageKey(c.rt.Config().KeyPrefix+g.Prefix, key)
	return c.rt.IncrBy(ctx, sk, delta)
}

func (c *Cache[V]) Decrement(ctx context.Context, key, groupName string, delta int64) (int64, error) {
	return c.Increment(ctx, key, groupName, -delta)
}

// Flush empties L1 only.
func (c *Cache[V]) Flush() { c.l1.flush() }

// Len is the number of L1 entries, expired ones included until swept.
func (c *Cache[V]) Len() int { return c.l1.len() }

func (c *Cache[V]) Stats() Stats {
	return Stats{
		L1Hits:     c.l1Hits.Load(),
		L2Hits:     c.l2Hits.Load(),
		Misses:     c.misses.Load(),
		Recomputes: c.recomputes.Load(),
	}
}

// Close releases the generation store if the cache created it. The runtime
// is closed by its owner.
func (c *Cache[V]) Close(ctx context.Context) error {
	c.Flush()
	if c.ownGen {
		return c.gen.Close(ctx)
	}
	return nil
}
