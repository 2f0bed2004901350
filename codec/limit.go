package codec

import (
	"errors"
	"fmt"
)

// LimitCodec wraps another codec and refuses to decode payloads larger than
// MaxDecode bytes. Encode is forwarded to Inner unchanged.
// If MaxDecode <= 0, size limiting is disabled.
//
// Use it when the backing store is shared with other writers and a single
// oversized value must not be able to stall readers.
type LimitCodec[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

var _ Codec[struct{}] = LimitCodec[struct{}]{}

// ErrPayloadTooLarge is returned (wrapped) when a payload exceeds MaxDecode.
var ErrPayloadTooLarge = errors.New("codec: payload too large")

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
