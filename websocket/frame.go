package websocket

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/valyala/fastrand"
)

var (
	ErrFrameTooLarge    = errors.New("websocket: frame payload exceeds configured maximum")
	ErrControlFrameSize = errors.New("websocket: control frame payload exceeds 125 bytes")
	ErrControlFrameFrag = errors.New("websocket: control frame must not be fragmented")
	ErrReservedBits     = errors.New("websocket: reserved bits set without a negotiated extension")
)

const maxControlPayload = 125

// Frame is a single decoded RFC 6455 frame. It carries only the payload
// (spec.md's resolved Open Question: a payload-only Frame, not a
// zero-copy FrameBuffer view) — simpler for the assembler and deflate
// layers built on top, at the cost of one copy per frame.
type Frame struct {
	Fin     bool
	RSV1    bool // set on the first frame of a permessage-deflate message
	OpCode  OpCode
	Payload []byte
}

// ReadFrameInfo is the header-only view produced while parsing, before
// the payload bytes are read (spec §3).
type ReadFrameInfo struct {
	Fin               bool
	RSV1              bool
	HeaderLen         int
	Mask              *MaskKey
	OpCode            OpCode
	PayloadLen        uint64
	ShouldDecompress  bool
}

// ReadFrameInfoFrom parses a frame header from r. isPeerClient selects
// whether a 4-byte mask key is expected to follow (clients always mask;
// servers never do, absent a no-masking extension neither side here
// negotiates).
func ReadFrameInfoFrom(r io.Reader, isPeerClient bool, maxPayload uint64) (ReadFrameInfo, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return ReadFrameInfo{}, err
	}

	fin := hdr[0]&0x80 != 0
	rsv1 := hdr[0]&0x40 != 0
	rsv2 := hdr[0]&0x20 != 0
	rsv3 := hdr[0]&0x10 != 0
	op := OpCode(hdr[0] & 0x0F)
	masked := hdr[1]&0x80 != 0
	lenField := hdr[1] & 0x7F

	if rsv2 || rsv3 {
		return ReadFrameInfo{}, ErrReservedBits
	}

	headerLen := 2
	var payloadLen uint64
	switch {
	case lenField < 126:
		payloadLen = uint64(lenField)
	case lenField == 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return ReadFrameInfo{}, err
		}
		payloadLen = uint64(binary.BigEndian.Uint16(ext[:]))
		headerLen += 2
	default:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return ReadFrameInfo{}, err
		}
		payloadLen = binary.BigEndian.Uint64(ext[:])
		headerLen += 8
	}

	if op.IsControl() {
		if !fin {
			return ReadFrameInfo{}, ErrControlFrameFrag
		}
		if payloadLen > maxControlPayload {
			return ReadFrameInfo{}, ErrControlFrameSize
		}
	}
	if maxPayload > 0 && payloadLen > maxPayload {
		return ReadFrameInfo{}, ErrFrameTooLarge
	}

	var mask *MaskKey
	if masked != isPeerClient {
		// The peer's masking bit must match their role; mismatches are a
		// protocol violation the caller should close 1002 on.
		return ReadFrameInfo{}, errors.New("websocket: mask bit does not match peer role")
	}
	if masked {
		var k MaskKey
		if _, err := io.ReadFull(r, k[:]); err != nil {
			return ReadFrameInfo{}, err
		}
		mask = &k
		headerLen += 4
	}

	return ReadFrameInfo{
		Fin:              fin,
		RSV1:             rsv1,
		HeaderLen:        headerLen,
		Mask:             mask,
		OpCode:           op,
		PayloadLen:       payloadLen,
		ShouldDecompress: rsv1,
	}, nil
}

// ReadPayload reads and unmasks (if applicable) the payload described by
// fi from r.
func ReadPayload(r io.Reader, fi ReadFrameInfo) ([]byte, error) {
	payload := make([]byte, fi.PayloadLen)
	if fi.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	if fi.Mask != nil {
		ApplyMask(payload, *fi.Mask)
	}
	return payload, nil
}

// WriteFrame encodes one frame to w. maskAsClient writes a random mask
// key and masks the payload (the client role); servers never mask.
func WriteFrame(w io.Writer, f Frame, maskAsClient bool) error {
	var hdr []byte
	b0 := byte(f.OpCode)
	if f.Fin {
		b0 |= 0x80
	}
	if f.RSV1 {
		b0 |= 0x40
	}
	hdr = append(hdr, b0)

	n := len(f.Payload)
	maskBit := byte(0)
	if maskAsClient {
		maskBit = 0x80
	}
	switch {
	case n < 126:
		hdr = append(hdr, maskBit|byte(n))
	case n <= 0xFFFF:
		hdr = append(hdr, maskBit|126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		hdr = append(hdr, ext[:]...)
	default:
		hdr = append(hdr, maskBit|127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		hdr = append(hdr, ext[:]...)
	}

	payload := f.Payload
	if maskAsClient {
		var k MaskKey
		binary.LittleEndian.PutUint32(k[:], fastrand.Uint32())
		hdr = append(hdr, k[:]...)
		payload = append([]byte(nil), payload...)
		ApplyMask(payload, k)
	}

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}
