// Package asynchook moves hook delivery off the cache's hot path. Events go
// through a bounded queue drained by a fixed set of workers; when the queue
// is full the event is dropped rather than blocking the caller.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{NegativeHitEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	rt := rescache.NewRuntime(cfg, rescache.WithHooks(hooks))
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/rescache"
)

type Hooks struct {
	inner   rescache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(inner rescache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = rescache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a queue closed concurrently with the check above
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) DriverDegraded(tech string, err error) {
	h.try(func() { h.inner.DriverDegraded(tech, err) })
}
func (h *Hooks) DriverRecovered(tech string) { h.try(func() { h.inner.DriverRecovered(tech) }) }
func (h *Hooks) BackendError(op string, err error) {
	h.try(func() { h.inner.BackendError(op, err) })
}
func (h *Hooks) SelfHeal(k, r string)          { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) NegativeHit(k string)          { h.try(func() { h.inner.NegativeHit(k) }) }
func (h *Hooks) LockContended(k string)        { h.try(func() { h.inner.LockContended(k) }) }
func (h *Hooks) ProviderSetRejected(k string)  { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) ClearRefused(p, reason string) { h.try(func() { h.inner.ClearRefused(p, reason) }) }
