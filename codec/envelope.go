package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/rescache/internal/wire"
)

// ErrUndecodable is returned by Envelope.Decode when no decoder accepts the
// payload and V cannot hold raw bytes.
var ErrUndecodable = errors.New("codec: payload undecodable")

// EncodeError reports that a value could not be serialized in any format.
type EncodeError struct {
	Errs []error // one per attempted format, in attempt order
}

func (e *EncodeError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return "codec: value not encodable in any format: " + strings.Join(parts, "; ")
}

func (e *EncodeError) Unwrap() []error { return e.Errs }

var (
	defaultOrder = []wire.Format{wire.JSON, wire.Msgpack, wire.CBOR}
	defaultCBOR  = mustCBORModes()
)

func mustCBORModes() *cborModes {
	m, err := newCBORModes(false)
	if err != nil {
		panic(err)
	}
	return &m
}

type rawKind uint8

const (
	rawNone rawKind = iota
	rawBytes
	rawString
	rawAny
)

// Envelope is the self-describing codec. Encode tries the preferred format
// first and falls back through JSON -> msgpack -> CBOR; the chosen format is
// recorded as a short tag in front of the payload. []byte values are stored
// raw.
//
// Decode dispatches on the tag. Untagged (legacy) payloads are sniffed; when
// no heuristic matches, V that can hold raw bytes (string, []byte, any - as a
// string for any) gets them back unchanged, and any other V is handed to the
// generic CBOR decoder. When every decoder fails the raw bytes are returned if
// V can hold them; otherwise ErrUndecodable.
//
// The zero value is ready to use and prefers JSON.
type Envelope[V any] struct {
	order []wire.Format
	cbor  *cborModes
}

var _ Codec[struct{}] = Envelope[struct{}]{}

// NewEnvelope returns an Envelope that tries prefer before the default
// order. Legacy or Raw preferences fall back to JSON.
func NewEnvelope[V any](prefer wire.Format) Envelope[V] {
	order := make([]wire.Format, 0, len(defaultOrder))
	if prefer == wire.JSON || prefer == wire.Msgpack || prefer == wire.CBOR {
		order = append(order, prefer)
	}
	for _, f := range defaultOrder {
		if f != prefer {
			order = append(order, f)
		}
	}
	return Envelope[V]{order: order}
}

func (e Envelope[V]) formats() []wire.Format {
	if len(e.order) == 0 {
		return defaultOrder
	}
	return e.order
}

func (e Envelope[V]) modes() *cborModes {
	if e.cbor == nil {
		return defaultCBOR
	}
	return e.cbor
}

func (e Envelope[V]) Encode(v V) ([]byte, error) {
	if b, ok := any(v).([]byte); ok {
		return wire.Frame(wire.Raw, b), nil
	}
	var errs []error
	for _, f := range e.formats() {
		payload, err := e.encodeAs(f, v)
		if err == nil {
			return wire.Frame(f, payload), nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", f, err))
	}
	return nil, &EncodeError{Errs: errs}
}

func (e Envelope[V]) encodeAs(f wire.Format, v V) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during encode: %v", r)
		}
	}()
	switch f {
	case wire.JSON:
		return json.Marshal(v)
	case wire.Msgpack:
		return msgpack.Marshal(v)
	case wire.CBOR:
		return e.modes().enc.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported format %s", f)
}

// Format reports which format b was written with, sniffing untagged data.
func Format(b []byte) wire.Format {
	if f, _, tagged := wire.Unframe(b); tagged {
		return f
	}
	return wire.Sniff(b)
}

func (e Envelope[V]) Decode(b []byte) (V, error) {
	f, payload, tagged := wire.Unframe(b)
	if tagged {
		if v, err := e.decodeAs(f, payload); err == nil {
			return v, nil
		}
		return rawFallback[V](b)
	}

	sniffed := wire.Sniff(b)
	if sniffed != wire.Legacy {
		if v, err := e.decodeAs(sniffed, b); err == nil {
			return v, nil
		}
	}
	// short text like "ab" is also a valid CBOR text string ("b")
	if sniffed != wire.CBOR && kindOf[V]() == rawNone {
		if v, err := e.decodeAs(wire.CBOR, b); err == nil {
			return v, nil
		}
	}
	return rawFallback[V](b)
}

func (e Envelope[V]) decodeAs(f wire.Format, payload []byte) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during decode: %v", r)
		}
	}()
	switch f {
	case wire.JSON:
		err = json.Unmarshal(payload, &v)
	case wire.Msgpack:
		err = msgpack.Unmarshal(payload, &v)
	case wire.CBOR:
		err = e.modes().dec.Unmarshal(wire.StripCBORMagic(payload), &v)
	case wire.Raw:
		if kindOf[V]() == rawNone {
			err = ErrUndecodable
			break
		}
		// tagged raw always holds bytes
		v, err = setRaw[V](payload, false)
	default:
		err = fmt.Errorf("unsupported format %s", f)
	}
	return v, err
}

func rawFallback[V any](b []byte) (V, error) {
	if kindOf[V]() == rawNone {
		var zero V
		return zero, ErrUndecodable
	}
	return setRaw[V](b, true)
}

// setRaw stores b in a fresh V. asString picks string over []byte for
// interface-typed V.
func setRaw[V any](b []byte, asString bool) (V, error) {
	var v V
	rv := reflect.ValueOf(&v).Elem()
	cp := append([]byte(nil), b...)
	switch kindOf[V]() {
	case rawBytes:
		rv.SetBytes(cp)
	case rawString:
		rv.SetString(string(cp))
	case rawAny:
		if asString {
			rv.Set(reflect.ValueOf(string(cp)))
		} else {
			rv.Set(reflect.ValueOf(cp))
		}
	default:
		return v, ErrUndecodable
	}
	return v, nil
}

func kindOf[V any]() rawKind {
	t := reflect.TypeOf((*V)(nil)).Elem()
	switch {
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		return rawAny
	case t.Kind() == reflect.String:
		return rawString
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return rawBytes
	}
	return rawNone
}
