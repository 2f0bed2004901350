package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes generated protobuf messages. Decode needs a constructor
// for a fresh message, e.g. func() *pb.Post { return &pb.Post{} }.
type Protobuf[T proto.Message] struct {
	new  func() T
	opts proto.MarshalOptions
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	// Deterministic output keeps equal messages byte-identical in the store.
	return Protobuf[T]{new: ctor, opts: proto.MarshalOptions{Deterministic: true}}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return c.opts.Marshal(v) }
func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}
