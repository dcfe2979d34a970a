package websocket

import (
	"errors"
	"io"

	"github.com/domsolutions/wtxgo/blocksdeque"
)

var (
	ErrOpcodeMismatch = errors.New("websocket: continuation frame opcode mismatch")
	ErrInvalidUTF8    = errors.New("websocket: invalid UTF-8 in Text message")
	ErrClosed         = errors.New("websocket: connection closed")
)

// Conn is a framer sitting directly on a byte stream (spec §4.9): one
// network buffer shape (the caller supplies any io.Reader/io.Writer,
// such as a net.Conn or wsh2's HTTP/2 stream adapter) and the read/write
// halves of one WebSocket endpoint.
type Conn struct {
	r io.Reader
	w io.Writer

	// IsClient is true when this endpoint is the WebSocket client: we
	// mask frames we send and expect the peer never to mask.
	IsClient bool

	MaxPayload uint64

	Deflate *Deflate // nil if permessage-deflate was not negotiated

	closed bool
}

func NewConn(r io.Reader, w io.Writer, isClient bool, maxPayload uint64) *Conn {
	return &Conn{r: r, w: w, IsClient: isClient, MaxPayload: maxPayload}
}

// ReadMessage reads one logical message, transparently handling
// fragmentation, inline Ping/Pong/Close per spec §4.9, and permessage-
// deflate decompression. Returns (opcode, payload) for Text/Binary; a
// received Close is still returned (with OpClose) so the caller can react
// to the code, but the reply has already been written.
func (c *Conn) ReadMessage() (OpCode, []byte, error) {
	for {
		fi, err := ReadFrameInfoFrom(c.r, !c.IsClient, c.MaxPayload)
		if err != nil {
			return 0, nil, err
		}
		payload, err := ReadPayload(c.r, fi)
		if err != nil {
			return 0, nil, err
		}

		if fi.OpCode.IsControl() {
			switch fi.OpCode {
			case OpPing:
				if err := c.writeFrame(Frame{Fin: true, OpCode: OpPong, Payload: payload}); err != nil {
					return 0, nil, err
				}
				continue
			case OpPong:
				continue
			case OpClose:
				code := CloseNormal
				if len(payload) >= 2 {
					code = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
				}
				_ = c.replyClose(code)
				c.closed = true
				return OpClose, payload, nil
			}
		}

		if fi.Fin && fi.OpCode != OpContinuation {
			if fi.ShouldDecompress && c.Deflate != nil {
				payload, err = c.Deflate.Decompress(payload)
				if err != nil {
					_ = c.replyClose(CloseProtocolError)
					return 0, nil, err
				}
			}
			if fi.OpCode == OpText && !validUTF8(payload) {
				_ = c.replyClose(CloseInvalidFramePayload)
				return 0, nil, ErrInvalidUTF8
			}
			return fi.OpCode, payload, nil
		}

		return c.assemble(fi, payload)
	}
}

// assemble reads CONTINUATION frames until Fin, validating UTF-8 across
// boundaries for Text messages.
func (c *Conn) assemble(first ReadFrameInfo, firstPayload []byte) (OpCode, []byte, error) {
	op := first.OpCode
	compressed := first.ShouldDecompress

	// frames queues each continuation fragment as its own block so the
	// final message is assembled with one copy per fragment instead of
	// repeated append-driven reallocation.
	frames := blocksdeque.New[byte, struct{}](len(firstPayload) * 2)
	frames.PushBack(firstPayload, struct{}{})

	var validator utf8Validator
	if op == OpText && !compressed {
		if !validator.Feed(firstPayload) {
			_ = c.replyClose(CloseInvalidFramePayload)
			return 0, nil, ErrInvalidUTF8
		}
	}

	fin := first.Fin
	for !fin {
		fi, err := ReadFrameInfoFrom(c.r, !c.IsClient, c.MaxPayload)
		if err != nil {
			return 0, nil, err
		}
		payload, err := ReadPayload(c.r, fi)
		if err != nil {
			return 0, nil, err
		}

		if fi.OpCode.IsControl() {
			switch fi.OpCode {
			case OpPing:
				if err := c.writeFrame(Frame{Fin: true, OpCode: OpPong, Payload: payload}); err != nil {
					return 0, nil, err
				}
			case OpClose:
				code := CloseNormal
				if len(payload) >= 2 {
					code = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
				}
				_ = c.replyClose(code)
				c.closed = true
				return OpClose, payload, nil
			}
			continue
		}

		if fi.OpCode != OpContinuation {
			_ = c.replyClose(CloseProtocolError)
			return 0, nil, ErrOpcodeMismatch
		}

		if op == OpText && !compressed {
			if !validator.Feed(payload) {
				_ = c.replyClose(CloseInvalidFramePayload)
				return 0, nil, ErrInvalidUTF8
			}
		}
		frames.PushBack(payload, struct{}{})
		fin = fi.Fin
	}

	if op == OpText && !compressed && !validator.Done() {
		_ = c.replyClose(CloseInvalidFramePayload)
		return 0, nil, ErrInvalidUTF8
	}

	buf := drainContinuationQueue(frames)

	if compressed && c.Deflate != nil {
		out, err := c.Deflate.Decompress(buf)
		if err != nil {
			_ = c.replyClose(CloseProtocolError)
			return 0, nil, err
		}
		buf = out
		if op == OpText && !validUTF8(buf) {
			_ = c.replyClose(CloseInvalidFramePayload)
			return 0, nil, ErrInvalidUTF8
		}
	}

	return op, buf, nil
}

func (c *Conn) writeFrame(f Frame) error {
	return WriteFrame(c.w, f, c.IsClient)
}

// WriteMessage writes a single-frame Text or Binary message, compressing
// it first if permessage-deflate was negotiated.
func (c *Conn) WriteMessage(op OpCode, payload []byte) error {
	f := Frame{Fin: true, OpCode: op, Payload: payload}
	if c.Deflate != nil && (op == OpText || op == OpBinary) {
		compressed, err := c.Deflate.Compress(payload)
		if err != nil {
			return err
		}
		f.Payload = compressed
		f.RSV1 = true
	}
	return c.writeFrame(f)
}

// Close sends a Close frame with the given code and reason.
func (c *Conn) Close(code CloseCode, reason string) error {
	payload := append([]byte{byte(code >> 8), byte(code)}, reason...)
	return c.writeFrame(Frame{Fin: true, OpCode: OpClose, Payload: payload})
}

// replyClose echoes the peer's close code (or CloseNormal if absent,
// resolving spec.md's Open Question on auto-reply behavior).
func (c *Conn) replyClose(code CloseCode) error {
	if c.closed {
		return nil
	}
	if !code.Valid() {
		code = CloseProtocolError
	}
	return c.Close(code, "")
}

func validUTF8(b []byte) bool {
	var v utf8Validator
	return v.Feed(b) && v.Done()
}

// drainContinuationQueue pops every queued fragment front-to-back and
// concatenates them into the reassembled message.
func drainContinuationQueue(q *blocksdeque.BlocksDeque[byte, struct{}]) []byte {
	var out []byte
	for {
		data, _, ok := q.PopFront()
		if !ok {
			return out
		}
		out = append(out, data...)
	}
}
