package codec

import (
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	in, err := structpb.NewStruct(map[string]any{"title": "A", "views": 3.0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("round trip mismatch: %v vs %v", in, out)
	}
}
