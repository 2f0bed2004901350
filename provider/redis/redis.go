package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/rescache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// scanCount is the COUNT hint per SCAN round trip.
const scanCount = 500

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Adder    = (*Redis)(nil)
	_ pr.Counter  = (*Redis)(nil)
	_ pr.Scanner  = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Client exposes the underlying client (e.g. for a shared generation store).
func (p *Redis) Client() goredis.UniversalClient { return p.rdb }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0 // redis: 0 => no expiry
	}
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Add is SET key value NX PX ttl.
func (p *Redis) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	return p.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (p *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return p.rdb.IncrBy(ctx, key, delta).Result()
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// Scan walks matching keys with cursor-based SCAN, never KEYS. On a cluster
// client every master is scanned.
func (p *Redis) Scan(ctx context.Context, match string, fn func(key string) error) error {
	if cc, ok := p.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return scanNode(ctx, node, match, fn)
		})
	}
	return scanNode(ctx, p.rdb, match, fn)
}

func scanNode(ctx context.Context, c goredis.Cmdable, match string, fn func(string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
