package http2

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/domsolutions/wtxgo/atomiccell"
)

// clientPreface is sent verbatim by every HTTP/2 client before its first
// SETTINGS frame (RFC 7540 §3.5).
const clientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Conn is a single HTTP/2 connection: the shared Http2Data of spec §4.6 —
// HPACK tables, stream registry, flow-control windows and the writer —
// all reached through one connection lock on the write side.
type Conn struct {
	c  net.Conn
	br *bufio.Reader

	wMu sync.Mutex
	bw  *bufio.Writer

	enc *HPACK // header blocks we encode and send
	dec *HPACK // header blocks we receive and decode

	params     Http2Params
	peerParams Http2Params

	connWindow *ConnWindow
	streams    *Streams

	isClient     bool
	nextStreamID uint32

	closed    atomiccell.AtomicCell[bool]
	closeOnce sync.Once
	doneCh    chan struct{}

	errMu   sync.Mutex
	lastErr error

	onGoAway func(code ErrorCode, lastStreamID uint32, debug []byte)

	// completeCh, set by Server.ServeConn, receives every server stream
	// the instant it has a parsed request line and has seen END_STREAM,
	// so the server can dispatch without polling.
	completeCh chan *Stream
}

// notifyComplete checks whether s just finished receiving its request
// and, if so and a completion channel is registered, hands it off.
func (c *Conn) notifyComplete(s *Stream) {
	if c.completeCh == nil {
		return
	}
	if s.takeNotify() {
		c.completeCh <- s
	}
}

// NewConn wraps an established net.Conn (already past any TLS/ALPN
// negotiation) with HTTP/2 framing state.
func NewConn(c net.Conn, isClient bool, params Http2Params) *Conn {
	params.Clamp()
	first := uint32(2)
	if isClient {
		first = 1
	}
	return &Conn{
		c:            c,
		br:           bufio.NewReaderSize(c, int(params.MaxFrameLen)+FrameHeaderLen),
		bw:           bufio.NewWriterSize(c, int(params.MaxFrameLen)+FrameHeaderLen),
		enc:          AcquireHPACK(),
		dec:          AcquireHPACK(),
		params:       params,
		peerParams:   DefaultHttp2Params(),
		connWindow:   NewConnWindow(int32(params.InitialWindowSize)),
		streams:      NewStreams(params.MaxConcurrentStreams),
		isClient:     isClient,
		nextStreamID: first,
		doneCh:       make(chan struct{}),
	}
}

func (c *Conn) IsClosed() bool { return c.closed.Load() }

// Done returns a channel closed once the connection is torn down, either
// locally or by a peer GOAWAY/EOF.
func (c *Conn) Done() <-chan struct{} { return c.doneCh }

func (c *Conn) LastErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// fail records the terminal error and tears the connection down; safe to
// call multiple times (e.g. once from the writer, once from the reader).
func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.lastErr = err
		c.errMu.Unlock()
		c.closed.Store(true)
		_ = c.c.Close()
		close(c.doneCh)
		c.streams.Each(func(s *Stream) { s.setCancelled() })
	})
}

// writeFrameLocked serializes fr onto the wire; callers hold c.wMu.
func (c *Conn) writeFrameLocked(fr *FrameHeader) error {
	_, err := fr.WriteTo(c.bw)
	if err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Conn) writeFrame(body Frame, streamID uint32) error {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.SetBody(body)
	fr.SetStream(streamID)

	c.wMu.Lock()
	defer c.wMu.Unlock()
	return c.writeFrameLocked(fr)
}

// sendSettingsLocked writes our local SETTINGS; caller holds c.wMu.
func (c *Conn) sendSettingsLocked() error {
	st := &Settings{}
	st.FromParams(c.params)
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.SetBody(st)
	return c.writeFrameLocked(fr)
}

// Handshake performs the client-side preface + SETTINGS exchange (spec
// §4.8). The caller is expected to have already spawned (or be about to
// spawn) the frame-reader loop; Handshake itself only handles the
// synchronous part before the reader takes over SETTINGS ACK bookkeeping.
func (c *Conn) Handshake() error {
	c.wMu.Lock()
	_, err := io.WriteString(c.bw, clientPreface)
	if err == nil {
		err = c.sendSettingsLocked()
	}
	c.wMu.Unlock()
	if err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Accept performs the server-side preface validation + SETTINGS exchange.
func (c *Conn) Accept() error {
	buf := make([]byte, len(clientPreface))
	if _, err := io.ReadFull(c.br, buf); err != nil {
		c.fail(err)
		return err
	}
	if string(buf) != clientPreface {
		c.fail(ErrBadPreface)
		return ErrBadPreface
	}

	c.wMu.Lock()
	err := c.sendSettingsLocked()
	c.wMu.Unlock()
	if err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// OpenStream allocates the next local stream id (client: odd, server:
// even — spec §3) and registers it.
func (c *Conn) OpenStream() *Stream {
	id := atomic.AddUint32(&c.nextStreamID, 2) - 2
	s := NewStream(id, c.connWindow, int32(c.peerParams.InitialWindowSize), c.params.MaxBodyLen)
	s.setState(StreamIdle)
	c.streams.Insert(s)
	return s
}

// GetStream looks up a live stream by id.
func (c *Conn) GetStream(id uint32) *Stream { return c.streams.Get(id) }

// EnableCompletions installs the completion channel ReadLoop's HEADERS/
// DATA handlers feed (see notifyComplete), for callers — such as a
// wsh2 tunnel acceptor — that drive their own stream-dispatch loop
// instead of going through Server. Must be called before ReadLoop starts.
func (c *Conn) EnableCompletions(buf int) <-chan *Stream {
	if c.completeCh == nil {
		c.completeCh = make(chan *Stream, buf)
	}
	return c.completeCh
}

// SendResponseHeaders writes a HEADERS frame carrying fields (expected
// to include a leading :status) without ending the stream, leaving the
// caller free to stream an arbitrary body (or, for an Extended CONNECT
// tunnel, raw DATA frames for the life of the session) afterward.
func (c *Conn) SendResponseHeaders(s *Stream, fields []HeaderField) error {
	return c.sendHeaders(s.ID(), fields, false)
}

// SendGoAway writes GOAWAY with the last-seen peer stream id (spec §4.8).
// It only writes the frame: the connection is not marked as going away,
// so OpenStream still allocates new streams afterwards, and the reader
// loop continues running until the peer closes the socket.
func (c *Conn) SendGoAway(code ErrorCode, debug []byte) error {
	ga := &GoAway{}
	ga.SetLastStreamID(c.streams.LastPeerID())
	ga.SetCode(code)
	ga.SetDebugData(debug)
	return c.writeFrame(ga, 0)
}

// sendRstStream resets a single stream without affecting the connection.
func (c *Conn) sendRstStream(streamID uint32, code ErrorCode) error {
	rs := &RstStream{}
	rs.SetCode(code)
	return c.writeFrame(rs, streamID)
}

// sendWindowUpdate deposits an unsolicited WINDOW_UPDATE, used by the
// reader task when a recv window dips below half its initial value.
func (c *Conn) sendWindowUpdate(streamID uint32, increment int32) error {
	if increment <= 0 {
		return nil
	}
	wu := &WindowUpdate{}
	wu.SetIncrement(uint32(increment))
	return c.writeFrame(wu, streamID)
}

// sendHeaders writes a HEADERS frame (plus CONTINUATION frames if the
// encoded block exceeds one peer max frame size), backpressured only by
// the frame-size limit — body backpressure from flow control is handled
// by the caller before invoking SendData.
func (c *Conn) sendHeaders(streamID uint32, fields []HeaderField, endStream bool) error {
	if err := ValidateHeaderBlock(fields); err != nil {
		return err
	}

	var block []byte
	c.wMu.Lock()
	for i := range fields {
		block = c.enc.AppendHeader(block, &fields[i], !fields[i].Sensitive())
	}
	c.wMu.Unlock()

	maxChunk := int(c.peerParams.MaxFrameLen)
	first := true
	for len(block) > 0 || first {
		n := len(block)
		if n > maxChunk {
			n = maxChunk
		}
		chunk := block[:n]
		block = block[n:]

		var body Frame
		if first {
			h := &Headers{}
			h.SetEndStream(endStream)
			h.SetEndHeaders(len(block) == 0)
			h.SetHeaderBlock(chunk)
			body = h
			first = false
		} else {
			ct := &Continuation{}
			ct.SetEndHeaders(len(block) == 0)
			ct.SetHeaderBlock(chunk)
			body = ct
		}
		if err := c.writeFrame(body, streamID); err != nil {
			return err
		}
	}
	return nil
}

// SendData writes payload as one or more DATA frames, chunked to the
// peer's max frame size and metered against both flow-control windows.
func (c *Conn) SendData(s *Stream, payload []byte, endStream bool) error {
	maxChunk := int(c.peerParams.MaxFrameLen)
	for len(payload) > 0 || (endStream && len(payload) == 0) {
		n := len(payload)
		if n > maxChunk {
			n = maxChunk
		}
		chunk := payload[:n]
		payload = payload[n:]

		if n > 0 {
			if err := s.Windows().WithdrawBoth(int32(n)); err != nil {
				return err
			}
		}

		d := &Data{}
		d.SetPayload(chunk)
		d.SetEndStream(endStream && len(payload) == 0)
		if err := c.writeFrame(d, s.ID()); err != nil {
			return err
		}
		if len(payload) == 0 {
			break
		}
	}
	if endStream {
		s.closeLocal()
	}
	return nil
}

// SendRequest encodes and sends HEADERS (+ DATA if body is non-empty) for
// a client-initiated request on a freshly opened stream.
func (c *Conn) SendRequest(s *Stream, method, path, authority, scheme string, headers []HeaderField, body []byte) error {
	fields := make([]HeaderField, 0, len(headers)+4)
	add := func(k, v string) {
		var hf HeaderField
		hf.SetBytes([]byte(k), []byte(v))
		fields = append(fields, hf)
	}
	add(":method", method)
	add(":path", path)
	add(":authority", authority)
	add(":scheme", scheme)
	fields = append(fields, headers...)

	if err := c.sendHeaders(s.ID(), fields, len(body) == 0); err != nil {
		return err
	}
	if len(body) > 0 {
		return c.SendData(s, body, true)
	}
	return nil
}
