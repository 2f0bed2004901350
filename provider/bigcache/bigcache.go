package bigcache

import (
	"context"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/rescache/internal/util"
	pr "github.com/unkn0wn-root/rescache/provider"
)

// Provider keeps entries in sharded off-heap buffers. BigCache only knows a
// global LifeWindow, so every value carries its own expiry header (see
// util.WithExpiry) and expired entries read as misses. The LifeWindow stays
// an upper bound: bigcache evicts anything older, "no expiry" included, and
// reclaims expired entries on its clean window.
type Provider struct {
	c   *bc.BigCache
	rmw sync.Mutex
	now func() time.Time
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Adder    = (*Provider)(nil)
	_ pr.Counter  = (*Provider)(nil)
	_ pr.Scanner  = (*Provider)(nil)
)

type Config struct {
	LifeWindow         time.Duration // 0 => 10m
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 10 * time.Minute
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now}, nil
}

// raw returns the stored entry, header included; nil on a miss.
func (p *Provider) raw(key string) ([]byte, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, nil
	}
	return b, err
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.raw(key)
	if err != nil {
		return nil, false, err
	}
	return util.Live(b, p.now())
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := p.c.Set(key, util.WithExpiry(value, ttl, p.now())); err != nil {
		return false, err
	}
	return true, nil
}

// Add treats an expired or corrupt entry as absent.
func (p *Provider) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.rmw.Lock()
	defer p.rmw.Unlock()
	b, err := p.raw(key)
	if err != nil {
		return false, err
	}
	if _, ok, _ := util.Live(b, p.now()); ok {
		return false, nil
	}
	return p.Set(ctx, key, value, ttl)
}

// IncrBy keeps the existing expiry of a live counter.
func (p *Provider) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	p.rmw.Lock()
	defer p.rmw.Unlock()
	b, err := p.raw(key)
	if err != nil {
		return 0, err
	}
	cur, ok, err := util.Live(b, p.now())
	if err != nil {
		return 0, err
	}
	hdr := make([]byte, util.ExpiryHeader)
	if ok {
		copy(hdr, b[:util.ExpiryHeader])
	}
	next, n, err := util.AddInt(cur, delta)
	if err != nil {
		return 0, err
	}
	if err := p.c.Set(key, append(hdr, next...)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// Scan iterates a snapshot of every shard and skips expired entries. Keys
// written during the scan may or may not be visited.
func (p *Provider) Scan(ctx context.Context, match string, fn func(key string) error) error {
	now := p.now()
	it := p.c.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := it.Value()
		if err != nil {
			// entry vanished between SetNext and Value
			continue
		}
		if util.Expired(e.Value(), now) || !util.Match(match, e.Key()) {
			continue
		}
		if err := fn(e.Key()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
