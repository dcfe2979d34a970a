// Package http2utils holds small byte-twiddling helpers shared by the
// frame types: big-endian uint24/uint32 conversion, buffer resizing, and
// random padding generation (AddPadding) for PADDED DATA/HEADERS frames.
package http2utils

import (
	"crypto/rand"
	"errors"

	"github.com/valyala/fastrand"
)

// ErrMissingBytes is returned when a frame's payload is shorter than the
// minimum required to decode its fixed fields.
var ErrMissingBytes = errors.New("http2utils: missing bytes")

func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Resize grows b (reusing its backing array when possible) so that it has
// exactly neededLen bytes.
func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// CutPadding strips the one-byte pad-length prefix and trailing padding
// described by the PADDED flag from payload, given the frame's declared
// length.
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrMissingBytes
	}
	pad := int(payload[0])
	if length-pad-1 < 0 || len(payload) < length-pad {
		return nil, ErrMissingBytes
	}
	return payload[1 : length-pad], nil
}

// AddPadding prefixes b with a random pad length (1..255) and appends
// that many random bytes, per RFC 7540 §6.1/§6.2 PADDED flag encoding.
func AddPadding(b []byte) []byte {
	n := int(fastrand.Uint32n(255)) + 1
	out := make([]byte, 0, len(b)+n+1)
	out = append(out, byte(n))
	out = append(out, b...)
	padStart := len(out)
	out = Resize(out, len(out)+n)
	_, _ = rand.Read(out[padStart:])
	return out
}
