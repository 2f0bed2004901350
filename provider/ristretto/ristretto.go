package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/rescache/internal/util"
	pr "github.com/unkn0wn-root/rescache/provider"
)

// Provider keeps entries in process memory. It cannot enumerate keys, so
// pattern clears are unsupported on this technology.
type Provider struct {
	c    *rc.Cache
	cost func(key string, value []byte) int64

	// serializes read-modify-write ops (Add, IncrBy); plain Get/Set stay lock-free
	rmw sync.Mutex
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Adder    = (*Provider)(nil)
	_ pr.Counter  = (*Provider)(nil)
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost returns the admission cost of an entry. nil => 1 per entry.
	Cost func(key string, value []byte) int64
}

// DefaultConfig sizes the cache for roughly 100k entries at cost 1.
func DefaultConfig() Config {
	return Config{NumCounters: 1_000_000, MaxCost: 100_000, BufferItems: 64}
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	cost := cfg.Cost
	if cost == nil {
		cost = func(string, []byte) int64 { return 1 }
	}
	return &Provider{c: c, cost: cost}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set admits the entry and waits for the write buffer to drain so the value
// is visible to the next Get (the health probe depends on this).
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok := p.set(key, value, ttl)
	return ok, nil
}

func (p *Provider) set(key string, value []byte, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0 // ristretto: 0 => no expiry
	}
	cp := append([]byte(nil), value...)
	ok := p.c.SetWithTTL(key, cp, p.cost(key, cp), ttl)
	p.c.Wait()
	return ok
}

func (p *Provider) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.rmw.Lock()
	defer p.rmw.Unlock()
	if _, ok, _ := p.Get(ctx, key); ok {
		return false, nil
	}
	return p.set(key, value, ttl), nil
}

// IncrBy is atomic within this process only. The counter keeps no TTL.
func (p *Provider) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	p.rmw.Lock()
	defer p.rmw.Unlock()
	cur, _, _ := p.Get(ctx, key)
	next, n, err := util.AddInt(cur, delta)
	if err != nil {
		return 0, err
	}
	if !p.set(key, next, 0) {
		return 0, errors.New("ristretto: counter write rejected")
	}
	return n, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto metrics (nil unless Config.Metrics is set).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
