package util

import (
	"fmt"
	"strconv"
	"strings"
)

// StorageKey joins the namespace prefix and a user key.
func StorageKey(prefix, key string) string { return prefix + key }

// NegativeKey returns the sibling key holding a confirmed-empty marker.
func NegativeKey(prefix, key string) string { return prefix + key + "::neg" }

// LockKey returns the advisory stampede lock key.
func LockKey(prefix, key string) string { return prefix + "__cache_lock:" + key }

// IsWildcardAll reports whether pattern matches every key.
func IsWildcardAll(pattern string) bool {
	return strings.Trim(pattern, "*") == ""
}

// AddInt parses raw as a decimal counter (missing => 0), adds delta and
// returns the encoded result alongside the new value.
func AddInt(raw []byte, delta int64) ([]byte, int64, error) {
	var cur int64
	if len(raw) > 0 {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("value is not an integer: %w", err)
		}
		cur = n
	}
	cur += delta
	return strconv.AppendInt(nil, cur, 10), cur, nil
}
