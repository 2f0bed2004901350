package rescache

import (
	"math/rand/v2"
	"reflect"
	"time"
)

// NoExpiry requests a write without TTL for a positive value.
const NoExpiry time.Duration = -1

// Policy decides the effective TTL of a write. A returned TTL of 0 means
// "no expiry" to the driver.
type Policy struct {
	DefaultTTL  time.Duration // 0 => positive values never expire by default
	NegativeTTL time.Duration
	Jitter      time.Duration // upper bound of the random extension; 0 disables

	// randN returns a uniform value in [0, n). nil => math/rand/v2.
	randN func(n int64) int64
}

// TTL returns the TTL for v given the caller's request (0 = default).
func (p Policy) TTL(v any, requested time.Duration) time.Duration {
	if IsNegative(v) {
		return p.NegativeTTL
	}
	return p.PositiveTTL(requested)
}

// PositiveTTL resolves requested against the default and applies jitter to
// finite results. The result lies in [T, T+Jitter].
func (p Policy) PositiveTTL(requested time.Duration) time.Duration {
	ttl := requested
	switch {
	case requested < 0:
		return 0
	case requested == 0:
		ttl = p.DefaultTTL
	}
	if ttl <= 0 {
		return 0
	}
	return ttl + p.jitter()
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	n := int64(p.Jitter) + 1
	if p.randN != nil {
		return time.Duration(p.randN(n))
	}
	return time.Duration(rand.Int64N(n))
}

// IsNegative reports whether v is a "known empty" result: nil, a nil
// pointer/interface/map/slice/chan/func, an empty string, or an empty
// map, slice or array. Zero numbers and false are real values.
func IsNegative(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	case reflect.Map, reflect.Slice:
		return rv.IsNil() || rv.Len() == 0
	case reflect.String, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
