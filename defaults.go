package rescache

import "time"

const (
	DefaultTTL         = time.Hour
	DefaultNegativeTTL = 30 * time.Second
	DefaultBusyWait    = 100 * time.Millisecond
	DefaultLockTTL     = 5 * time.Second
	DefaultCooldown    = 5 * time.Minute
	DefaultProbeTTL    = 10 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
