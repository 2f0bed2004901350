package rescache

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedTechnology means no builder is registered for the
	// configured technology.
	ErrUnsupportedTechnology = errors.New("rescache: unsupported backend technology")

	// ErrMissingDependency means the technology is known but its runtime
	// requirement (address, file path, client) is not configured.
	ErrMissingDependency = errors.New("rescache: backend dependency unavailable")

	// ErrProbeMismatch means the probe value read back differs from the one written.
	ErrProbeMismatch = errors.New("rescache: probe read-back mismatch")

	// ErrProbeMiss means the probe value could not be read back at all.
	ErrProbeMiss = errors.New("rescache: probe value not found")

	// ErrClearRefused guards against wiping a whole unprefixed keyspace.
	ErrClearRefused = errors.New("rescache: refusing to clear every key without a prefix")

	// ErrClearUnsupported means the active driver cannot enumerate keys.
	ErrClearUnsupported = errors.New("rescache: pattern clear unsupported by driver")

	// ErrCounterUnsupported means the active driver has no native counters.
	ErrCounterUnsupported = errors.New("rescache: counters unsupported by driver")
)

// ConfigError is a configuration-class failure: the backend could not be
// built or did not pass its health probe. It only reaches callers when the
// runtime is strict; otherwise the runtime degrades.
type ConfigError struct {
	Technology Technology
	Op         string // "build" or "probe"
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rescache: %s %s: %v", e.Op, e.Technology, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
