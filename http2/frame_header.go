package http2

import (
	"bufio"
	"io"
	"sync"

	"github.com/domsolutions/wtxgo/http2/http2utils"
)

const (
	// FrameHeaderLen is the fixed 9-byte frame header size (RFC 7540 §4.1).
	FrameHeaderLen = 9

	defaultMaxFrameLen = 1 << 14
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} { return &FrameHeader{} },
}

// FrameHeader couples the 9-byte wire header with the decoded/about-to-be
// encoded Frame body. Not safe for concurrent use; acquire one per
// frame via AcquireFrameHeader.
type FrameHeader struct {
	length int
	kind   FrameType
	flags  FrameFlags
	stream uint32

	maxLen uint32

	raw     [FrameHeaderLen]byte
	payload []byte

	body Frame
}

func AcquireFrameHeader() *FrameHeader {
	fr := frameHeaderPool.Get().(*FrameHeader)
	fr.Reset()
	return fr
}

func ReleaseFrameHeader(fr *FrameHeader) {
	frameHeaderPool.Put(fr)
}

func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = defaultMaxFrameLen
	frh.body = nil
	frh.payload = frh.payload[:0]
}

func (frh *FrameHeader) Type() FrameType     { return frh.kind }
func (frh *FrameHeader) Flags() FrameFlags   { return frh.flags }
func (frh *FrameHeader) SetFlags(f FrameFlags) { frh.flags = f }
func (frh *FrameHeader) Stream() uint32      { return frh.stream }
func (frh *FrameHeader) SetStream(id uint32) { frh.stream = id & (1<<31 - 1) }
func (frh *FrameHeader) Len() int            { return frh.length }
func (frh *FrameHeader) SetMaxLen(n uint32)  { frh.maxLen = n }
func (frh *FrameHeader) Body() Frame         { return frh.body }

func (frh *FrameHeader) SetBody(b Frame) {
	frh.kind = b.Type()
	frh.body = b
}

func (frh *FrameHeader) setPayload(p []byte) {
	frh.payload = append(frh.payload[:0], p...)
}

func (frh *FrameHeader) parseValues(h []byte) {
	frh.length = int(http2utils.BytesToUint24(h[:3]))
	frh.kind = FrameType(h[3])
	frh.flags = FrameFlags(h[4])
	frh.stream = http2utils.BytesToUint32(h[5:]) & (1<<31 - 1)
}

func (frh *FrameHeader) encodeValues() {
	http2utils.Uint24ToBytes(frh.raw[:3], uint32(frh.length))
	frh.raw[3] = byte(frh.kind)
	frh.raw[4] = byte(frh.flags)
	http2utils.Uint32ToBytes(frh.raw[5:], frh.stream)
}

// ReadFrameFrom reads one frame header + payload from br, decoding the
// body via the frame type registered with NewFrame. Frame types this
// core does not recognize (PRIORITY, PUSH_PROMISE, ...) are consumed and
// surfaced with a nil Body, per RFC 7540 §4.1 ("implementations MUST
// ignore and discard any frame that has a type that is unknown").
func ReadFrameFrom(br *bufio.Reader, maxLen uint32) (*FrameHeader, error) {
	frh := AcquireFrameHeader()
	if maxLen > 0 {
		frh.maxLen = maxLen
	}

	header, err := br.Peek(FrameHeaderLen)
	if err != nil {
		ReleaseFrameHeader(frh)
		return nil, err
	}
	_, _ = br.Discard(FrameHeaderLen)

	frh.parseValues(header)
	if frh.maxLen != 0 && frh.length > int(frh.maxLen) {
		_, _ = br.Discard(frh.length)
		ReleaseFrameHeader(frh)
		return nil, ErrPayloadExceeds
	}

	if frh.length > 0 {
		frh.payload = http2utils.Resize(frh.payload, frh.length)
		if _, err := io.ReadFull(br, frh.payload); err != nil {
			ReleaseFrameHeader(frh)
			return nil, err
		}
	}

	body := NewFrame(frh.kind)
	if body == nil {
		return frh, nil
	}
	frh.body = body
	return frh, body.Deserialize(frh)
}

// WriteTo serializes Body into the shared payload buffer and writes the
// wire header + payload to w.
func (frh *FrameHeader) WriteTo(w *bufio.Writer) (int64, error) {
	frh.body.Serialize(frh)
	frh.length = len(frh.payload)
	frh.encodeValues()

	n, err := w.Write(frh.raw[:])
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(frh.payload)
	return int64(n + m), err
}
