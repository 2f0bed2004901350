package rescache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/rescache/provider"
	pbc "github.com/unkn0wn-root/rescache/provider/bigcache"
	pbolt "github.com/unkn0wn-root/rescache/provider/bolt"
	"github.com/unkn0wn-root/rescache/provider/nop"
	predis "github.com/unkn0wn-root/rescache/provider/redis"
	pristretto "github.com/unkn0wn-root/rescache/provider/ristretto"
)

// Builder constructs a driver for one technology. It must not probe; the
// factory does that.
type Builder func(ctx context.Context, cfg Config) (provider.Provider, error)

// DefaultBuilders returns a fresh registry of the built-in technologies.
func DefaultBuilders() map[Technology]Builder {
	return map[Technology]Builder{
		TechRedis:    buildRedis,
		TechMemory:   buildMemory,
		TechBigCache: buildBigCache,
		TechBolt:     buildBolt,
		TechNone:     buildNone,
	}
}

func buildRedis(_ context.Context, cfg Config) (provider.Provider, error) {
	rc := cfg.Redis
	if rc.Client != nil {
		return predis.New(predis.Config{Client: rc.Client})
	}
	if len(rc.Addrs) == 0 {
		return nil, fmt.Errorf("%w: no redis address configured", ErrMissingDependency)
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        rc.Addrs,
		Username:     rc.Username,
		Password:     rc.Password,
		DB:           rc.DB,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})
	return predis.New(predis.Config{Client: client, CloseClient: true})
}

func buildMemory(_ context.Context, cfg Config) (provider.Provider, error) {
	def := pristretto.DefaultConfig()
	return pristretto.New(pristretto.Config{
		NumCounters: coalesce(cfg.Memory.NumCounters, def.NumCounters),
		MaxCost:     coalesce(cfg.Memory.MaxCost, def.MaxCost),
		BufferItems: coalesce(cfg.Memory.BufferItems, def.BufferItems),
	})
}

func buildBigCache(ctx context.Context, cfg Config) (provider.Provider, error) {
	return pbc.New(ctx, pbc.Config{
		LifeWindow:         cfg.BigCache.LifeWindow,
		HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB,
	})
}

func buildBolt(_ context.Context, cfg Config) (provider.Provider, error) {
	if cfg.Bolt.Path == "" {
		return nil, fmt.Errorf("%w: no bolt database path configured", ErrMissingDependency)
	}
	return pbolt.Open(cfg.Bolt.Path, cfg.Bolt.Timeout)
}

func buildNone(context.Context, Config) (provider.Provider, error) { return nop.Provider{}, nil }

// CreateAndValidate builds the driver for tech and runs the health probe.
// Every failure is a *ConfigError so the caller can choose between
// degrading and failing fast. The none technology is not probed.
func CreateAndValidate(ctx context.Context, tech Technology, cfg Config, builders map[Technology]Builder) (provider.Provider, error) {
	build, ok := builders[tech]
	if !ok || build == nil {
		return nil, &ConfigError{Technology: tech, Op: "build", Err: ErrUnsupportedTechnology}
	}
	p, err := build(ctx, cfg)
	if err != nil {
		return nil, &ConfigError{Technology: tech, Op: "build", Err: err}
	}
	if tech == TechNone {
		return p, nil
	}
	if err := Probe(ctx, p, cfg.KeyPrefix, coalesce(cfg.ProbeTTL, DefaultProbeTTL)); err != nil {
		_ = p.Close(ctx)
		return nil, &ConfigError{Technology: tech, Op: "probe", Err: err}
	}
	return p, nil
}

var errProbeRejected = errors.New("probe write rejected")

// Probe writes a random sentinel under "<prefix>__cache_probe:<id>", reads
// it back and requires a byte-exact match. The sentinel is removed
// afterwards on a best-effort basis.
func Probe(ctx context.Context, p provider.Provider, prefix string, ttl time.Duration) error {
	key := prefix + "__cache_probe:" + uuid.NewString()
	want := []byte(uuid.NewString())

	ok, err := p.Set(ctx, key, want, ttl)
	if err != nil {
		return fmt.Errorf("probe write: %w", err)
	}
	if !ok {
		return errProbeRejected
	}
	defer func() { _ = p.Del(ctx, key) }()

	got, ok, err := p.Get(ctx, key)
	switch {
	case err != nil:
		return fmt.Errorf("probe read: %w", err)
	case !ok:
		return ErrProbeMiss
	case !bytes.Equal(got, want):
		return ErrProbeMismatch
	}
	return nil
}
