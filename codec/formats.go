package codec

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// JSON is a Codec backed by encoding/json. The zero value is ready to use.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// Msgpack is a Codec backed by vmihailenco/msgpack/v5. The zero value is ready to use.
//
// Struct fields are keyed by the `msgpack` tag; set UseJSONTags to reuse
// existing `json` tags instead.
type Msgpack[V any] struct {
	UseJSONTags bool
}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.UseJSONTags {
		return msgpack.Marshal(v)
	}
	return marshalMsgpackJSONTags(v)
}

func (c Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if !c.UseJSONTags {
		err := msgpack.Unmarshal(b, &v)
		return v, err
	}
	err := unmarshalMsgpackJSONTags(b, &v)
	return v, err
}

// CBOR is a Codec backed by fxamacker/cbor. The zero value is NOT ready to
// use; construct with NewCBOR or MustCBOR.
//
// deterministic=true selects RFC 8949 Core Deterministic encoding for
// byte-stable output; otherwise PreferredUnsortedEncOptions are used.
// Time values are encoded as RFC3339Nano.
type CBOR[V any] struct {
	modes cborModes
}

var _ Codec[struct{}] = CBOR[struct{}]{}

type cborModes struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORModes(deterministic bool) (cborModes, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return cborModes{}, err
	}
	// Decode maps into map[string]any where possible so untyped values look
	// the same as they do after a JSON round trip.
	dm, err := cbor.DecOptions{DefaultMapType: mapStringAny}.DecMode()
	if err != nil {
		return cborModes{}, err
	}
	return cborModes{enc: em, dec: dm}, nil
}

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	m, err := newCBORModes(deterministic)
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{modes: m}, nil
}

// MustCBOR is like NewCBOR but panics on error. Handy for package-level
// variables in tests/examples.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.modes.enc.Marshal(v) }
func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.modes.dec.Unmarshal(b, &v)
	return v, err
}
