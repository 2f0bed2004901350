package tiered

import (
	"container/list"
	"sync"
	"time"
)

// sweepPerAccess bounds how many entries at the old end of the insertion
// list an access inspects for expiry.
const sweepPerAccess = 2

type l1Entry[V any] struct {
	key       string
	v         V
	expiresAt time.Time
	el        *list.Element
}

// l1 is a mutex-guarded map with insertion-ordered eviction. Expired entries
// are dropped when touched and a few at a time from the oldest end.
type l1[V any] struct {
	mu    sync.Mutex
	m     map[string]*l1Entry[V]
	order *list.List // front = oldest insertion
	max   int
	now   func() time.Time
}

func newL1[V any](maxEntries int, now func() time.Time) *l1[V] {
	return &l1[V]{m: make(map[string]*l1Entry[V]), order: list.New(), max: maxEntries, now: now}
}

func (c *l1[V]) get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	e, ok := c.m[key]
	if !ok {
		return zero, false
	}
	if !now.Before(e.expiresAt) {
		c.removeLocked(e)
		return zero, false
	}
	return e.v, true
}

func (c *l1[V]) set(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.m[key]; ok {
		c.removeLocked(e)
	}
	e := &l1Entry[V]{key: key, v: v, expiresAt: now.Add(ttl)}
	e.el = c.order.PushBack(e)
	c.m[key] = e

	c.sweepLocked(now)
	for c.max > 0 && len(c.m) > c.max {
		c.removeLocked(c.order.Front().Value.(*l1Entry[V]))
	}
}

func (c *l1[V]) del(key string) {
	c.mu.Lock()
	if e, ok := c.m[key]; ok {
		c.removeLocked(e)
	}
	c.mu.Unlock()
}

func (c *l1[V]) flush() {
	c.mu.Lock()
	clear(c.m)
	c.order.Init()
	c.mu.Unlock()
}

func (c *l1[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *l1[V]) sweepLocked(now time.Time) {
	for i := 0; i < sweepPerAccess; i++ {
		front := c.order.Front()
		if front == nil {
			return
		}
		e := front.Value.(*l1Entry[V])
		if now.Before(e.expiresAt) {
			return
		}
		c.removeLocked(e)
	}
}

func (c *l1[V]) removeLocked(e *l1Entry[V]) {
	c.order.Remove(e.el)
	delete(c.m, e.key)
}
