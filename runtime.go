package rescache

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rescache/provider"
	"github.com/unkn0wn-root/rescache/provider/nop"
)

// Mode is the failure-mode controller state.
type Mode uint8

const (
	ModeActive   Mode = iota // dispatching to the live driver
	ModeDegraded             // dispatching to the no-op driver until cooldown
)

func (m Mode) String() string {
	if m == ModeDegraded {
		return "degraded"
	}
	return "active"
}

// State is a point-in-time copy of the runtime's driver health.
type State struct {
	Technology    Technology
	Mode          Mode
	Initialized   bool
	DegradedSince time.Time
	Failed        map[Technology]time.Time
	LastError     error
}

type RuntimeOption func(*Runtime)

func WithLogger(l Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

func WithHooks(h Hooks) RuntimeOption {
	return func(r *Runtime) {
		if h != nil {
			r.hooks = h
		}
	}
}

// WithClock replaces time.Now for cooldown bookkeeping.
func WithClock(now func() time.Time) RuntimeOption {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// WithBuilder registers (or replaces) the builder for one technology.
func WithBuilder(t Technology, b Builder) RuntimeOption {
	return func(r *Runtime) { r.builders[t] = b }
}

type driverSlot struct{ p provider.Provider }

// Runtime owns the shared backend driver of a process: it builds it lazily,
// probes it, and swaps in the no-op driver while the backend is unusable.
// Construct one per process (or per test) and share it between caches.
type Runtime struct {
	cfg      Config
	log      Logger
	hooks    Hooks
	now      func() time.Time
	builders map[Technology]Builder

	// live is set only while Active with a built driver.
	live atomic.Pointer[driverSlot]

	mu            sync.Mutex
	cur           provider.Provider
	mode          Mode
	degradedSince time.Time
	failed        map[Technology]time.Time
	lastErr       error
	closed        bool
}

// NewRuntime does no I/O; the driver is built on first use.
func NewRuntime(cfg Config, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		cfg:      cfg.withDefaults(),
		log:      NopLogger{},
		hooks:    NopHooks{},
		now:      time.Now,
		builders: DefaultBuilders(),
		failed:   make(map[Technology]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration (defaults applied).
func (r *Runtime) Config() Config { return r.cfg }

// Driver returns the driver to dispatch to. While degraded and inside the
// cooldown it returns the no-op driver without touching the backend; once
// the cooldown elapses the next call rebuilds and re-probes. Under strict
// mode a build or probe failure is returned as *ConfigError instead.
func (r *Runtime) Driver(ctx context.Context) (provider.Provider, error) {
	if s := r.live.Load(); s != nil {
		return s.p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.live.Load(); s != nil {
		return s.p, nil
	}
	if r.closed {
		return nop.Provider{}, nil
	}
	wasDegraded := r.mode == ModeDegraded
	if wasDegraded {
		if r.now().Sub(r.degradedSince) < r.cfg.Cooldown {
			return nop.Provider{}, nil
		}
		clear(r.failed)
		r.lastErr = nil
	}

	tech := r.cfg.Technology
	p, err := CreateAndValidate(ctx, tech, r.cfg, r.builders)
	if err != nil {
		if r.cfg.Strict {
			r.log.Error("cache driver unavailable (strict)", Fields{"technology": string(tech), "err": err})
			return nil, err
		}
		now := r.now()
		r.mode = ModeDegraded
		r.degradedSince = now
		r.failed[tech] = now
		r.lastErr = err
		r.cur = nil
		r.log.Warn("cache driver degraded", Fields{
			"technology": string(tech),
			"err":        err,
			"cooldown":   r.cfg.Cooldown.String(),
		})
		r.hooks.DriverDegraded(string(tech), err)
		return nop.Provider{}, nil
	}

	r.cur = p
	r.mode = ModeActive
	r.degradedSince = time.Time{}
	r.live.Store(&driverSlot{p: p})
	if wasDegraded {
		r.log.Info("cache driver recovered", Fields{"technology": string(tech)})
		r.hooks.DriverRecovered(string(tech))
	}
	return p, nil
}

func (r *Runtime) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Technology:    r.cfg.Technology,
		Mode:          r.mode,
		Initialized:   r.cur != nil,
		DegradedSince: r.degradedSince,
		Failed:        maps.Clone(r.failed),
		LastError:     r.lastErr,
	}
}

// Reset closes the live driver and forgets all health state; the next call
// builds from scratch.
func (r *Runtime) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.dropLocked(ctx)
	r.mode = ModeActive
	r.degradedSince = time.Time{}
	clear(r.failed)
	r.lastErr = nil
	r.closed = false
	return err
}

// Close releases the driver. A closed runtime serves the no-op driver.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.dropLocked(ctx)
}

func (r *Runtime) dropLocked(ctx context.Context) error {
	r.live.Store(nil)
	p := r.cur
	r.cur = nil
	if p == nil {
		return nil
	}
	return p.Close(ctx)
}

func (r *Runtime) backendError(op, key string, err error) {
	r.log.Warn("cache backend error", Fields{"op": op, "key": key, "err": err})
	r.hooks.BackendError(op, err)
}

// Get reads raw bytes. Backend errors are absorbed as a miss.
func (r *Runtime) Get(ctx context.Context, key string) ([]byte, bool, error) {
	p, err := r.Driver(ctx)
	if err != nil {
		return nil, false, err
	}
	b, ok, err := p.Get(ctx, key)
	if err != nil {
		r.backendError("get", key, err)
		return nil, false, nil
	}
	return b, ok, nil
}

// Set writes raw bytes; ttl <= 0 means no expiry. Backend errors are
// absorbed as a failed write.
func (r *Runtime) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p, err := r.Driver(ctx)
	if err != nil {
		return false, err
	}
	ok, err := p.Set(ctx, key, value, ttl)
	if err != nil {
		r.backendError("set", key, err)
		return false, nil
	}
	if !ok {
		r.hooks.ProviderSetRejected(key)
	}
	return ok, nil
}

func (r *Runtime) Delete(ctx context.Context, key string) (bool, error) {
	p, err := r.Driver(ctx)
	if err != nil {
		return false, err
	}
	if err := p.Del(ctx, key); err != nil {
		r.backendError("del", key, err)
		return false, nil
	}
	return true, nil
}

// Add is set-if-absent. Drivers without the primitive, and backend
// errors, report true so callers never wait on a lock nobody can hold.
func (r *Runtime) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p, err := r.Driver(ctx)
	if err != nil {
		return false, err
	}
	a, ok := p.(provider.Adder)
	if !ok {
		return true, nil
	}
	added, err := a.Add(ctx, key, value, ttl)
	if err != nil {
		r.backendError("add", key, err)
		return true, nil
	}
	return added, nil
}

// IncrBy applies delta to a native counter. Counters have no meaningful
// miss value, so failures are returned: ErrCounterUnsupported when the
// driver (including the degraded no-op driver) has no counters, or the
// backend error.
func (r *Runtime) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	p, err := r.Driver(ctx)
	if err != nil {
		return 0, err
	}
	c, ok := p.(provider.Counter)
	if !ok {
		return 0, ErrCounterUnsupported
	}
	n, err := c.IncrBy(ctx, key, delta)
	if err != nil {
		r.backendError("incr", key, err)
		return 0, err
	}
	return n, nil
}

// Scan enumerates keys matching a glob. Returns ErrClearUnsupported when
// the driver cannot enumerate.
func (r *Runtime) Scan(ctx context.Context, match string, fn func(key string) error) error {
	p, err := r.Driver(ctx)
	if err != nil {
		return err
	}
	s, ok := p.(provider.Scanner)
	if !ok {
		return ErrClearUnsupported
	}
	if err := s.Scan(ctx, match, fn); err != nil {
		r.backendError("scan", match, err)
		return err
	}
	return nil
}
