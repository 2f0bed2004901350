package rescache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/rescache/internal/util"
	pr "github.com/unkn0wn-root/rescache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
	ttl time.Duration
}

// memProvider is a map-backed driver with an injectable clock and failure
// switches.
type memProvider struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time

	getErr error
	setErr error
	delErr error
}

var (
	_ pr.Provider = (*memProvider)(nil)
	_ pr.Adder    = (*memProvider)(nil)
	_ pr.Counter  = (*memProvider)(nil)
	_ pr.Scanner  = (*memProvider)(nil)
)

func newMemProvider() *memProvider {
	return &memProvider{m: make(map[string]memEntry), now: time.Now}
}

func (p *memProvider) liveLocked(key string) (memEntry, bool) {
	e, ok := p.m[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.exp.IsZero() && !p.now().Before(e.exp) {
		delete(p.m, key)
		return memEntry{}, false
	}
	return e, true
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	e, ok := p.liveLocked(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.v...), true, nil
}

func (p *memProvider) setLocked(key string, value []byte, ttl time.Duration) {
	e := memEntry{v: append([]byte(nil), value...), ttl: ttl}
	if ttl > 0 {
		e.exp = p.now().Add(ttl)
	}
	p.m[key] = e
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return false, p.setErr
	}
	p.setLocked(key, value, ttl)
	return true, nil
}

func (p *memProvider) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return false, p.setErr
	}
	if _, ok := p.liveLocked(key); ok {
		return false, nil
	}
	p.setLocked(key, value, ttl)
	return true, nil
}

func (p *memProvider) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, _ := p.liveLocked(key)
	b, n, err := util.AddInt(e.v, delta)
	if err != nil {
		return 0, err
	}
	e.v = b
	p.m[key] = e
	return n, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delErr != nil {
		return p.delErr
	}
	delete(p.m, key)
	return nil
}

func (p *memProvider) Scan(_ context.Context, match string, fn func(string) error) error {
	p.mu.Lock()
	var keys []string
	for k := range p.m {
		if _, ok := p.liveLocked(k); ok && util.Match(match, k) {
			keys = append(keys, k)
		}
	}
	p.mu.Unlock()
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.liveLocked(key)
	return ok
}

func (p *memProvider) ttlOf(key string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m[key].ttl
}

func (p *memProvider) put(key string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(key, value, 0)
}

func (p *memProvider) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.m))
	for k := range p.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// plainProvider hides the optional capabilities of its inner provider.
type plainProvider struct{ inner pr.Provider }

func (p plainProvider) Get(ctx context.Context, k string) ([]byte, bool, error) {
	return p.inner.Get(ctx, k)
}
func (p plainProvider) Set(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error) {
	return p.inner.Set(ctx, k, v, ttl)
}
func (p plainProvider) Del(ctx context.Context, k string) error { return p.inner.Del(ctx, k) }
func (p plainProvider) Close(ctx context.Context) error         { return p.inner.Close(ctx) }

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recHooks records hook calls by name.
type recHooks struct {
	NopHooks
	mu    sync.Mutex
	calls map[string]int
}

func newRecHooks() *recHooks { return &recHooks{calls: make(map[string]int)} }

func (h *recHooks) inc(name string) {
	h.mu.Lock()
	h.calls[name]++
	h.mu.Unlock()
}

func (h *recHooks) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *recHooks) DriverDegraded(string, error) { h.inc("degraded") }
func (h *recHooks) DriverRecovered(string)       { h.inc("recovered") }
func (h *recHooks) BackendError(string, error)   { h.inc("backend_error") }
func (h *recHooks) SelfHeal(string, string)      { h.inc("self_heal") }
func (h *recHooks) NegativeHit(string)           { h.inc("negative_hit") }
func (h *recHooks) LockContended(string)         { h.inc("lock_contended") }
func (h *recHooks) ProviderSetRejected(string)   { h.inc("set_rejected") }
func (h *recHooks) ClearRefused(string, string)  { h.inc("clear_refused") }

// newMemRuntime wires a runtime whose memory technology is p.
func newMemRuntime(cfg Config, p pr.Provider, opts ...RuntimeOption) *Runtime {
	cfg.Technology = TechMemory
	opts = append([]RuntimeOption{
		WithBuilder(TechMemory, func(context.Context, Config) (pr.Provider, error) { return p, nil }),
	}, opts...)
	return NewRuntime(cfg, opts...)
}
