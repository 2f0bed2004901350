package rescache

import (
	"context"
	"time"
)

var lockSentinel = []byte("1")

// guard is the advisory stampede lock. It lives in the shared backend so it
// is visible across processes. No owner is tracked: a stale or lost lock
// only costs one busy wait.
type guard struct {
	rt       *Runtime
	lockTTL  time.Duration
	busyWait time.Duration
}

// acquire reports whether this caller took the lock.
func (g guard) acquire(ctx context.Context, lockKey string) (bool, error) {
	return g.rt.Add(ctx, lockKey, lockSentinel, g.lockTTL)
}

// release is called only by the acquirer, after its write attempt.
func (g guard) release(ctx context.Context, lockKey string) {
	_, _ = g.rt.Delete(context.WithoutCancel(ctx), lockKey)
}

// wait is the single bounded sleep a contended caller takes.
func (g guard) wait(ctx context.Context) error {
	if g.busyWait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.busyWait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
