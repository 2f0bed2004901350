// Package wire implements the self-describing envelope that prefixes every
// payload written by rescache with a short ASCII format tag.
//
//	$j:<json> | $m:<msgpack> | $c:<cbor> | $r:<raw bytes>
//
// Payloads without a recognized tag are legacy data; Sniff guesses their
// format so that values written by older deployments stay readable.
package wire

import (
	"bytes"
	"encoding/json"
)

// Format identifies the serializer used for a payload.
type Format byte

const (
	Legacy  Format = iota // untagged, written before envelopes existed
	JSON                  // text, human-diagnosable
	Msgpack               // compact binary
	CBOR                  // generic native serialization
	Raw                   // bytes stored as-is
)

const tagLen = 3

var tags = [...]string{
	JSON:    "$j:",
	Msgpack: "$m:",
	CBOR:    "$c:",
	Raw:     "$r:",
}

// cborMagic is the RFC 8949 self-described CBOR tag (55799).
var cborMagic = []byte{0xd9, 0xd9, 0xf7}

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case Msgpack:
		return "msgpack"
	case CBOR:
		return "cbor"
	case Raw:
		return "raw"
	default:
		return "legacy"
	}
}

// ParseFormat maps a configuration name to a Format. ok is false for
// unknown names.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "json", "JSON":
		return JSON, true
	case "msgpack", "binary", "igbinary":
		return Msgpack, true
	case "cbor", "native", "serialize":
		return CBOR, true
	case "raw":
		return Raw, true
	}
	return Legacy, false
}

// Frame returns tag(format) || payload. Framing Legacy returns payload unchanged.
func Frame(f Format, payload []byte) []byte {
	if f == Legacy || int(f) >= len(tags) {
		return payload
	}
	out := make([]byte, 0, tagLen+len(payload))
	out = append(out, tags[f]...)
	return append(out, payload...)
}

// Unframe splits a tagged payload. tagged is false when b carries no
// recognized tag, in which case payload is b itself and f is Legacy.
func Unframe(b []byte) (f Format, payload []byte, tagged bool) {
	if len(b) >= tagLen && b[0] == '$' && b[2] == ':' {
		switch b[1] {
		case 'j':
			return JSON, b[tagLen:], true
		case 'm':
			return Msgpack, b[tagLen:], true
		case 'c':
			return CBOR, b[tagLen:], true
		case 'r':
			return Raw, b[tagLen:], true
		}
	}
	return Legacy, b, false
}

// Sniff guesses the format of untagged bytes. It returns Legacy when no
// heuristic matches.
func Sniff(b []byte) Format {
	if len(b) == 0 {
		return Legacy
	}
	if bytes.HasPrefix(b, cborMagic) {
		return CBOR
	}
	if json.Valid(b) {
		return JSON
	}
	if isMsgpackContainer(b[0]) {
		return Msgpack
	}
	return Legacy
}

// StripCBORMagic drops a leading self-describe tag if present.
func StripCBORMagic(b []byte) []byte {
	return bytes.TrimPrefix(b, cborMagic)
}

// isMsgpackContainer matches the leading byte of msgpack maps and arrays,
// which is what structured values serialize to.
func isMsgpackContainer(c byte) bool {
	switch {
	case c >= 0x80 && c <= 0x9f: // fixmap, fixarray
		return true
	case c == 0xdc || c == 0xdd || c == 0xde || c == 0xdf: // array16/32, map16/32
		return true
	}
	return false
}
