package rescache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the cache calls them on
// hot paths. Wrap slow sinks with hooks/async.
type Hooks interface {
	// The runtime failed to build or probe a driver and switched to the no-op
	// sink until the cooldown elapses.
	DriverDegraded(technology string, err error)

	// A driver passed its probe after a degraded period.
	DriverRecovered(technology string)

	// A backend operation failed and was absorbed as a miss / failed write.
	// op ∈ {"get", "set", "del", "add", "incr", "scan"}
	BackendError(op string, err error)

	// An entry was deleted on read because it could not be decoded.
	SelfHeal(storageKey, reason string)

	// A read was answered by the negative ("known empty") marker.
	NegativeHit(storageKey string)

	// The stampede lock for a key was already held by another caller.
	LockContended(storageKey string)

	// The provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A pattern clear was refused. reason ∈ {"wildcard_all", "unsupported"}
	ClearRefused(pattern, reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) DriverDegraded(string, error) {}
func (NopHooks) DriverRecovered(string)       {}
func (NopHooks) BackendError(string, error)   {}
func (NopHooks) SelfHeal(string, string)      {}
func (NopHooks) NegativeHit(string)           {}
func (NopHooks) LockContended(string)         {}
func (NopHooks) ProviderSetRejected(string)   {}
func (NopHooks) ClearRefused(string, string)  {}
