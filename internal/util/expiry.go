package util

import (
	"encoding/binary"
	"errors"
	"time"
)

// ExpiryHeader is the size of the header written by WithExpiry.
const ExpiryHeader = 8

// ErrCorruptEntry means a stored value is shorter than its expiry header.
var ErrCorruptEntry = errors.New("rescache: corrupt expiring entry")

// WithExpiry returns expiresAt(unix nano, i64 be; 0 = never) || value for
// stores that cannot expire individual entries themselves.
func WithExpiry(value []byte, ttl time.Duration, now time.Time) []byte {
	out := make([]byte, ExpiryHeader+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(out[:ExpiryHeader], uint64(now.Add(ttl).UnixNano()))
	}
	copy(out[ExpiryHeader:], value)
	return out
}

// Live returns the payload of an entry written by WithExpiry. ok is false
// when raw is nil or expired at now. The payload aliases raw.
func Live(raw []byte, now time.Time) (payload []byte, ok bool, err error) {
	if raw == nil {
		return nil, false, nil
	}
	if len(raw) < ExpiryHeader {
		return nil, false, ErrCorruptEntry
	}
	if Expired(raw, now) {
		return nil, false, nil
	}
	return raw[ExpiryHeader:], true, nil
}

// Expired reports whether a well-formed entry has passed its deadline.
func Expired(raw []byte, now time.Time) bool {
	if len(raw) < ExpiryHeader {
		return false
	}
	exp := int64(binary.BigEndian.Uint64(raw[:ExpiryHeader]))
	return exp != 0 && now.UnixNano() >= exp
}
