package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen     uint64
	touched time.Time
}

// Local keeps generations in-process. Entries untouched for longer than
// retention are pruned by an optional sweeper; a pruned key reads as 0,
// which can only let through a write that was already racing a delete
// older than retention.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry
	now  func() time.Time

	retention time.Duration
	stop      chan struct{}
	wg        sync.WaitGroup
}

var _ Store = (*Local)(nil)

// NewLocal starts a sweeper when both sweep and retention are > 0.
func NewLocal(sweep, retention time.Duration) *Local {
	s := &Local{
		gens:      make(map[string]localEntry),
		now:       time.Now,
		retention: retention,
	}
	if sweep > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.wg.Add(1)
		go s.sweepLoop(sweep)
	}
	return s
}

func (s *Local) sweepLoop(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Prune()
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[key]
	s.mu.RUnlock()
	return e.gen, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	e := s.gens[key]
	e.gen++
	e.touched = now
	s.gens[key] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Prune drops entries older than the retention window.
func (s *Local) Prune() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.touched.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *Local) Close(context.Context) error {
	if s.stop != nil {
		close(s.stop)
		s.wg.Wait()
		s.stop = nil
	}
	return nil
}
