package rescache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/genstore"
	"github.com/unkn0wn-root/rescache/internal/util"
)

// Status classifies a lookup.
type Status uint8

const (
	Miss        Status = iota
	Hit                // primary entry decoded
	NegativeHit        // "known empty" marker present, primary absent
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case NegativeHit:
		return "negative_hit"
	default:
		return "miss"
	}
}

var negativeMarker = []byte("$n")

const (
	defaultGenSweep     = time.Hour
	defaultGenRetention = 24 * time.Hour
)

type Options[V any] struct {
	// Codec defaults to a codec.Envelope preferring Config.Serializer.
	Codec codec.Codec[V]
	// GenStore fences writes against concurrent deletes. nil => in-process
	// store owned (and closed) by the cache.
	GenStore genstore.Store
	// Prefix is appended to the runtime's KeyPrefix.
	Prefix string
	// DefaultTTL / NegativeTTL override the runtime configuration.
	DefaultTTL  time.Duration
	NegativeTTL time.Duration
	// AllowClearAll overrides Config.AllowClearAll when true.
	AllowClearAll bool
}

// Cache is the typed, resilient cache. Backend failures degrade to misses
// and failed writes; the only errors returned are *ConfigError under strict
// mode, errors from a Remember callback, and Clear refusals.
type Cache[V any] struct {
	rt     *Runtime
	prefix string
	codec  codec.Codec[V]
	gen    genstore.Store
	ownGen bool
	policy Policy
	guard  guard
	log    Logger
	hooks  Hooks

	allowClearAll bool
}

func New[V any](rt *Runtime, opts Options[V]) (*Cache[V], error) {
	if rt == nil {
		return nil, errors.New("rescache: runtime is required")
	}
	cfg := rt.Config()
	c := &Cache[V]{
		rt:     rt,
		prefix: cfg.KeyPrefix + opts.Prefix,
		codec:  opts.Codec,
		gen:    opts.GenStore,
		policy: Policy{
			DefaultTTL:  coalesce(opts.DefaultTTL, cfg.DefaultTTL),
			NegativeTTL: coalesce(opts.NegativeTTL, cfg.NegativeTTL),
			Jitter:      cfg.Jitter,
		},
		guard:         guard{rt: rt, lockTTL: cfg.LockTTL, busyWait: cfg.BusyWait},
		log:           rt.log,
		hooks:         rt.hooks,
		allowClearAll: opts.AllowClearAll || cfg.AllowClearAll,
	}
	if c.codec == nil {
		c.codec = codec.NewEnvelope[V](cfg.Format())
	}
	if c.gen == nil {
		c.gen = genstore.NewLocal(defaultGenSweep, defaultGenRetention)
		c.ownGen = true
	}
	return c, nil
}

// Close releases the generation store if the cache created it. The runtime
// is shared and closed separately.
func (c *Cache[V]) Close(ctx context.Context) error {
	if c.ownGen {
		return c.gen.Close(ctx)
	}
	return nil
}

func (c *Cache[V]) Runtime() *Runtime { return c.rt }

// Get returns the cached value. A negative marker reads as a miss; use
// Lookup to tell the two apart.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, st, err := c.Lookup(ctx, key)
	return v, st == Hit, err
}

// Lookup consults the primary entry, then its negative sibling.
func (c *Cache[V]) Lookup(ctx context.Context, key string) (V, Status, error) {
	var zero V
	k := util.StorageKey(c.prefix, key)

	raw, ok, err := c.rt.Get(ctx, k)
	if err != nil {
		return zero, Miss, err
	}
	if ok {
		v, err := c.codec.Decode(raw)
		if err == nil {
			return v, Hit, nil
		}
		c.selfHeal(ctx, k, err)
	}

	nk := util.NegativeKey(c.prefix, key)
	if _, ok, err := c.rt.Get(ctx, nk); err != nil {
		return zero, Miss, err
	} else if ok {
		c.hooks.NegativeHit(k)
		return zero, NegativeHit, nil
	}
	return zero, Miss, nil
}

func (c *Cache[V]) selfHeal(ctx context.Context, k string, err error) {
	c.log.Warn("cache entry undecodable, deleting", Fields{"key": k, "err": err})
	c.hooks.SelfHeal(k, "decode_error")
	_, _ = c.rt.Delete(ctx, k)
}

// Set stores v. Negative values (see IsNegative) only write the "known
// empty" marker with the negative TTL and drop the primary. ttl 0 uses the
// default TTL, NoExpiry writes without expiry. Returns false when the value
// could not be encoded or the backend did not take the write.
func (c *Cache[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) (bool, error) {
	if IsNegative(v) {
		return c.setNegative(ctx, key)
	}
	k := util.StorageKey(c.prefix, key)
	b, err := c.codec.Encode(v)
	if err != nil {
		c.log.Error("cache encode failed, write aborted", Fields{"key": k, "err": err})
		return false, nil
	}
	ok, err := c.rt.Set(ctx, k, b, c.policy.PositiveTTL(ttl))
	if err != nil || !ok {
		return false, err
	}
	// a stale marker must not answer once the primary expires
	if _, err := c.rt.Delete(ctx, util.NegativeKey(c.prefix, key)); err != nil {
		return true, err
	}
	return true, nil
}

func (c *Cache[V]) setNegative(ctx context.Context, key string) (bool, error) {
	if _, err := c.rt.Delete(ctx, util.StorageKey(c.prefix, key)); err != nil {
		return false, err
	}
	return c.rt.Set(ctx, util.NegativeKey(c.prefix, key), negativeMarker, c.policy.NegativeTTL)
}

// Delete removes the entry and its negative marker and bumps the key's
// generation so an in-flight Remember does not write back a stale value.
func (c *Cache[V]) Delete(ctx context.Context, key string) (bool, error) {
	k := util.StorageKey(c.prefix, key)
	if _, err := c.gen.Bump(ctx, k); err != nil {
		c.log.Warn("cache generation bump failed", Fields{"key": k, "err": err})
	}
	ok, err := c.rt.Delete(ctx, k)
	if err != nil {
		return false, err
	}
	if _, err := c.rt.Delete(ctx, util.NegativeKey(c.prefix, key)); err != nil {
		return false, err
	}
	return ok, nil
}

// Clear deletes every key matching prefix+pattern (glob syntax) and returns
// how many were removed. A match-everything pattern without a key prefix is
// refused unless AllowClearAll is set. Drivers without key enumeration
// return ErrClearUnsupported.
func (c *Cache[V]) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	if c.prefix == "" && util.IsWildcardAll(pattern) && !c.allowClearAll {
		c.log.Warn("cache clear refused", Fields{"pattern": pattern, "reason": "wildcard_all"})
		c.hooks.ClearRefused(pattern, "wildcard_all")
		return 0, ErrClearRefused
	}

	n := 0
	err := c.rt.Scan(ctx, c.prefix+pattern, func(key string) error {
		if ok, err := c.rt.Delete(ctx, key); err != nil {
			return err
		} else if ok {
			n++
		}
		return ctx.Err()
	})
	if errors.Is(err, ErrClearUnsupported) {
		c.log.Warn("cache clear refused", Fields{"pattern": pattern, "reason": "unsupported"})
		c.hooks.ClearRefused(pattern, "unsupported")
	}
	return n, err
}

// Remember returns the cached value for key or computes, stores and returns
// it. On a miss only one caller (across processes sharing the backend)
// normally recomputes; the others wait once for BusyWait, re-check, and then
// recompute anyway. Empty results are cached as negative markers, and a
// later negative hit returns the zero V without calling fn.
func (c *Cache[V]) Remember(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, done, err := c.cached(ctx, key); done || err != nil {
		return v, err
	}

	k := util.StorageKey(c.prefix, key)
	lk := util.LockKey(c.prefix, key)
	acquired, err := c.guard.acquire(ctx, lk)
	if err != nil {
		return zero, err
	}
	if acquired {
		defer c.guard.release(ctx, lk)
	} else {
		c.hooks.LockContended(k)
		c.log.Debug("cache lock contended, waiting", Fields{"key": k})
		if err := c.guard.wait(ctx); err != nil {
			return zero, err
		}
		if v, done, err := c.cached(ctx, key); done || err != nil {
			return v, err
		}
	}

	fenced := true
	obs, err := c.gen.Snapshot(ctx, k)
	if err != nil {
		c.log.Warn("cache generation snapshot failed", Fields{"key": k, "err": err})
		fenced = false
	}

	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if fenced {
		if cur, err := c.gen.Snapshot(ctx, k); err == nil && cur != obs {
			c.log.Debug("cache write skipped (deleted during recompute)", Fields{"key": k})
			return v, nil
		}
	}
	if _, err := c.Set(ctx, key, v, ttl); err != nil {
		return v, err
	}
	return v, nil
}

// cached reports done=true when the lookup answered the call (hit or
// negative hit).
func (c *Cache[V]) cached(ctx context.Context, key string) (V, bool, error) {
	v, st, err := c.Lookup(ctx, key)
	if err != nil {
		return v, true, err
	}
	return v, st != Miss, nil
}
