package http2

import "sync"

// StreamState is one of the five RFC 7540 §5.1 states this implementation
// distinguishes; PUSH_PROMISE states (ReservedLocal/ReservedRemote) are
// folded out since we never push (spec §6).
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamIdle:
		return "Idle"
	case StreamOpen:
		return "Open"
	case StreamHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamClosed:
		return "Closed"
	}
	return "Unknown"
}

// RecvEOS reports whether the peer will send no further data on this
// stream.
func (ss StreamState) RecvEOS() bool {
	return ss == StreamHalfClosedRemote || ss == StreamClosed
}

const maxContinuationFrames = 16

// Stream is the per-stream record maintained by the frame-reader task
// (spec §4.7's StreamOverallRecvParams) plus the bits the connection
// facade needs to hand callers a usable handle.
type Stream struct {
	mu sync.Mutex

	id    uint32
	state StreamState

	windows *WindowsPair

	bodyLen    uint32
	maxBodyLen uint32

	hasInitialHeader bool
	continuationsSeen int

	method     string
	path       string
	authority  string
	scheme     string
	statusCode int

	headers []HeaderField
	body    []byte

	cancelled bool
	notified  bool

	ready  chan struct{}
	closed chan struct{}

	// streaming, dataCh: set by a long-lived duplex consumer (wsh2's
	// CONNECT tunnel) that wants DATA payloads handed to it as they
	// arrive instead of accumulated into body until END_STREAM, which
	// a WebSocket-over-HTTP/2 stream never sends until the tunnel closes.
	streaming    bool
	dataCh       chan []byte
	dataChClosed bool
}

func NewStream(id uint32, conn *ConnWindow, streamInitial int32, maxBodyLen uint32) *Stream {
	return &Stream{
		id:         id,
		state:      StreamIdle,
		windows:    NewWindowsPair(conn, streamInitial),
		maxBodyLen: maxBodyLen,
		ready:      make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

func (s *Stream) ID() uint32 { return s.id }

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(state StreamState) {
	s.state = state
	if state == StreamClosed {
		select {
		case <-s.closed:
		default:
			close(s.closed)
		}
	}
}

// ClosedCh returns a channel closed once the stream reaches StreamClosed,
// for callers selecting on stream completion alongside a context.
func (s *Stream) ClosedCh() <-chan struct{} { return s.closed }

// HeadersReady returns a channel closed the instant the stream's initial
// header block (request or response pseudo-headers) has been fully
// parsed, regardless of END_STREAM — the signal an Extended CONNECT
// caller needs instead of waiting for RecvEOS, which a tunnel never
// reaches until it closes.
func (s *Stream) HeadersReady() <-chan struct{} { return s.ready }

func (s *Stream) Windows() *WindowsPair { return s.windows }

// onHeaders applies a decoded header block to the stream record.
// isServer selects which pseudo-header set is expected first (spec
// §4.7: server wants :method, client wants :status); a HEADERS frame
// after the first one is treated as trailers.
func (s *Stream) onHeaders(fields []HeaderField, isServer bool, endStream bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasInitialHeader {
		for _, f := range fields {
			switch f.Key() {
			case ":method":
				s.method = f.Value()
			case ":path":
				s.path = f.Value()
			case ":authority":
				s.authority = f.Value()
			case ":scheme":
				s.scheme = f.Value()
			case ":status":
				n := 0
				for _, c := range f.Value() {
					if c < '0' || c > '9' {
						n = 0
						break
					}
					n = n*10 + int(c-'0')
				}
				s.statusCode = n
			}
		}
		if isServer && s.method == "" {
			return NewError(ProtocolError, "missing :method on initial HEADERS")
		}
		if !isServer && s.statusCode == 0 {
			return NewError(ProtocolError, "missing :status on initial HEADERS")
		}
		s.hasInitialHeader = true
		if s.state == StreamIdle {
			s.setState(StreamOpen)
		}
		close(s.ready)
	}

	s.headers = append(s.headers, fields...)

	if endStream {
		s.transitionHalfClosedRemote()
	}
	return nil
}

func (s *Stream) onContinuation() error {
	s.continuationsSeen++
	if s.continuationsSeen > maxContinuationFrames {
		return NewError(EnhanceYourCalmError, "too many CONTINUATION frames")
	}
	return nil
}

func (s *Stream) onData(payload []byte, endStream bool) error {
	s.mu.Lock()

	if s.streaming {
		ch := s.dataCh
		if endStream {
			s.transitionHalfClosedRemote()
		}
		s.mu.Unlock()
		if len(payload) > 0 {
			ch <- payload
		}
		if endStream {
			s.mu.Lock()
			if !s.dataChClosed {
				s.dataChClosed = true
				close(ch)
			}
			s.mu.Unlock()
		}
		return nil
	}

	s.bodyLen += uint32(len(payload))
	if s.bodyLen > s.maxBodyLen {
		s.mu.Unlock()
		return NewError(FrameSizeError, "DATA exceeds max body length")
	}
	s.body = append(s.body, payload...)

	if endStream {
		s.transitionHalfClosedRemote()
	}
	s.mu.Unlock()
	return nil
}

// EnableStreaming switches the stream from accumulate-until-END_STREAM
// mode into a live channel of DATA payloads, closed when the peer sends
// END_STREAM or the connection tears the stream down. Used by wsh2's
// CONNECT tunnel, where a WebSocket session has no natural request body
// boundary. Must be called before any DATA frame arrives.
func (s *Stream) EnableStreaming() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = true
	s.dataCh = make(chan []byte, 32)
	return s.dataCh
}

// transitionHalfClosedRemote moves Idle/Open toward HalfClosedRemote or
// Closed once the peer signals END_STREAM. Caller holds s.mu.
func (s *Stream) transitionHalfClosedRemote() {
	switch s.state {
	case StreamOpen, StreamIdle:
		s.setState(StreamHalfClosedRemote)
	case StreamHalfClosedLocal:
		s.setState(StreamClosed)
	}
}

// closeLocal moves the stream toward HalfClosedLocal/Closed once the
// local side finishes sending (its own END_STREAM was just written).
func (s *Stream) closeLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StreamOpen, StreamIdle:
		s.setState(StreamHalfClosedLocal)
	case StreamHalfClosedRemote:
		s.setState(StreamClosed)
	}
}

func (s *Stream) setCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.streaming && !s.dataChClosed {
		s.dataChClosed = true
		close(s.dataCh)
	}
}

func (s *Stream) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Stream) Method() string { s.mu.Lock(); defer s.mu.Unlock(); return s.method }
func (s *Stream) Path() string   { s.mu.Lock(); defer s.mu.Unlock(); return s.path }
func (s *Stream) StatusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCode
}

func (s *Stream) Headers() []HeaderField {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers
}

func (s *Stream) Body() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

func (s *Stream) HasInitialHeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasInitialHeader
}

// takeNotify reports whether the stream just became eligible for
// dispatch (RecvEOS reached with a request line already parsed) and has
// not yet been handed to the caller, marking it handed-off if so.
func (s *Stream) takeNotify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notified || !s.hasInitialHeader {
		return false
	}
	// Extended CONNECT (RFC 8441) requests never carry END_STREAM on
	// their initiating HEADERS — the tunnel body follows as ordinary
	// DATA frames for the life of the session — so they're dispatchable
	// the instant headers complete, unlike a normal request/response.
	if s.method != "CONNECT" && !s.state.RecvEOS() {
		return false
	}
	s.notified = true
	return true
}
