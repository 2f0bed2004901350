// Package codec converts cached values to bytes and back.
//
// Envelope is the default codec used by rescache: it tags every payload with
// its format so readers built with a different default serializer can still
// decode it. The single-format codecs (JSON, Msgpack, CBOR, Protobuf, Bytes,
// String) are available for callers that want a fixed wire format.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
