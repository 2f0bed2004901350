package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares generations across processes. With a TTL, generation keys
// expire after the last bump and read as 0 again.
type Redis struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration

	closeClient bool
}

var _ Store = (*Redis)(nil)

type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string
	TTL       time.Duration // 0 => generation keys never expire
	// CloseClient makes Close close the client too.
	CloseClient bool
}

func NewRedis(cfg RedisConfig) *Redis {
	return &Redis{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}
}

func (s *Redis) key(k string) string { return "__cache_gen:" + s.ns + ":" + k }

func (s *Redis) Snapshot(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	g, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: parse generation of %q: %w", key, err)
	}
	return g, nil
}

// Bump pipelines INCR and EXPIRE in one round trip when a TTL is set.
func (s *Redis) Bump(ctx context.Context, key string) (uint64, error) {
	k := s.key(key)
	if s.ttl <= 0 {
		n, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(n), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		return s.rdb.Close()
	}
	return nil
}
