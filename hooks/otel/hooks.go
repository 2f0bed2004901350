// Package otelhooks counts cache events with OpenTelemetry metrics.
//
//	hooks, err := otelhooks.New(otel.GetMeterProvider().Meter("rescache"))
//	rt := rescache.NewRuntime(cfg, rescache.WithHooks(hooks))
package otelhooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/rescache"
)

type Hooks struct {
	degraded     metric.Int64Counter
	recovered    metric.Int64Counter
	backendErrs  metric.Int64Counter
	selfHeals    metric.Int64Counter
	negativeHits metric.Int64Counter
	contended    metric.Int64Counter
	setRejected  metric.Int64Counter
	clearRefused metric.Int64Counter
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(meter metric.Meter) (*Hooks, error) {
	h := &Hooks{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&h.degraded, "rescache.driver.degraded", "Transitions to the degraded (no-op) driver"},
		{&h.recovered, "rescache.driver.recovered", "Recoveries after a degraded period"},
		{&h.backendErrs, "rescache.backend.errors", "Backend operations absorbed as miss or failed write"},
		{&h.selfHeals, "rescache.self_heal", "Undecodable entries deleted on read"},
		{&h.negativeHits, "rescache.negative.hits", "Reads answered by a negative marker"},
		{&h.contended, "rescache.lock.contended", "Stampede lock already held on a miss"},
		{&h.setRejected, "rescache.set.rejected", "Writes rejected by the backend"},
		{&h.clearRefused, "rescache.clear.refused", "Refused pattern clears"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{event}"))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}
	return h, nil
}

func add(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if len(attrs) == 0 {
		c.Add(context.Background(), 1)
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (h *Hooks) DriverDegraded(technology string, _ error) {
	add(h.degraded, attribute.String("technology", technology))
}

func (h *Hooks) DriverRecovered(technology string) {
	add(h.recovered, attribute.String("technology", technology))
}

func (h *Hooks) BackendError(op string, _ error) {
	add(h.backendErrs, attribute.String("op", op))
}

// Keys are not recorded as attributes: they are unbounded.
func (h *Hooks) SelfHeal(_, reason string) {
	add(h.selfHeals, attribute.String("reason", reason))
}

func (h *Hooks) NegativeHit(string)         { add(h.negativeHits) }
func (h *Hooks) LockContended(string)       { add(h.contended) }
func (h *Hooks) ProviderSetRejected(string) { add(h.setRejected) }

func (h *Hooks) ClearRefused(_, reason string) {
	add(h.clearRefused, attribute.String("reason", reason))
}
