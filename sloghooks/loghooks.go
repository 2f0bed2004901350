// Package sloghooks reports cache events through log/slog. Frequent events
// (negative hits, lock contention, self-heal) can be sampled, and keys are
// redacted before they reach the log.
package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/rescache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery      uint64
	NegativeHitEvery   uint64
	LockContendedEvery uint64
	BackendErrorEvery  uint64
	// Optional key redactor. Defaults to the hex xxhash64 of the key.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr, negHitCtr, lockCtr, backendCtr atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) DriverDegraded(technology string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("rescache.driver_degraded",
		"technology", technology,
		"err", err)
}

func (h *Hooks) DriverRecovered(technology string) {
	if h.l == nil {
		return
	}
	h.l.Info("rescache.driver_recovered", "technology", technology)
}

func (h *Hooks) BackendError(op string, err error) {
	if h.l == nil || !sample(h.opts.BackendErrorEvery, &h.backendCtr) {
		return
	}
	h.l.Warn("rescache.backend_error",
		"op", op,
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("rescache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) NegativeHit(storageKey string) {
	if h.l == nil || !sample(h.opts.NegativeHitEvery, &h.negHitCtr) {
		return
	}
	h.l.Debug("rescache.negative_hit", "key", h.redact(storageKey))
}

func (h *Hooks) LockContended(storageKey string) {
	if h.l == nil || !sample(h.opts.LockContendedEvery, &h.lockCtr) {
		return
	}
	h.l.Debug("rescache.lock_contended", "key", h.redact(storageKey))
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.provider_set_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) ClearRefused(pattern, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.clear_refused",
		"pattern", pattern,
		"reason", reason)
}
