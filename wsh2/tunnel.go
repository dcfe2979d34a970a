// Package wsh2 tunnels a WebSocket session over a single HTTP/2 stream
// using Extended CONNECT (RFC 8441): a CONNECT request carrying
// :protocol=websocket instead of the classic CONNECT/Upgrade dance,
// followed by ordinary DATA frames in both directions holding raw
// RFC 6455 frames.
package wsh2

import (
	"errors"
	"io"
	"net"

	"github.com/domsolutions/wtxgo/http2"
	"github.com/domsolutions/wtxgo/websocket"
)

const websocketVersion = "13"

var (
	// ErrNotExtendedConnect is returned when a peer's :protocol/:method
	// pair doesn't match RFC 8441's Extended CONNECT shape.
	ErrNotExtendedConnect = errors.New("wsh2: not an Extended CONNECT request")
	ErrUnexpectedStatus   = errors.New("wsh2: tunnel peer rejected CONNECT")
	ErrUnsupportedVersion = errors.New("wsh2: unsupported Sec-WebSocket-Version")
)

// streamRW adapts an http2.Stream, once switched into streaming mode,
// into an io.Reader/io.Writer pair so the websocket package's framer can
// sit directly on top without knowing about HTTP/2 at all.
type streamRW struct {
	conn   *http2.Conn
	stream *http2.Stream
	data   <-chan []byte
	buf    []byte
}

func newStreamRW(conn *http2.Conn, stream *http2.Stream) *streamRW {
	return &streamRW{conn: conn, stream: stream, data: stream.EnableStreaming()}
}

func (rw *streamRW) Read(p []byte) (int, error) {
	for len(rw.buf) == 0 {
		chunk, ok := <-rw.data
		if !ok {
			return 0, io.EOF
		}
		rw.buf = chunk
	}
	n := copy(p, rw.buf)
	rw.buf = rw.buf[n:]
	return n, nil
}

func (rw *streamRW) Write(p []byte) (int, error) {
	if err := rw.conn.SendData(rw.stream, p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Dial opens a new stream on conn and performs the Extended CONNECT
// handshake (RFC 8441 §4) for a WebSocket tunnel to path on authority,
// returning a ready-to-use websocket.Conn once the peer answers 200.
func Dial(conn *http2.Conn, authority, path string) (*websocket.Conn, error) {
	s := conn.OpenStream()

	var hdr http2.HeaderField
	fields := make([]http2.HeaderField, 0, 2)
	hdr.SetBytes([]byte(":protocol"), []byte("websocket"))
	fields = append(fields, hdr)
	hdr.SetBytes([]byte("sec-websocket-version"), []byte(websocketVersion))
	fields = append(fields, hdr)

	if err := conn.SendRequest(s, "CONNECT", path, authority, "https", fields, nil); err != nil {
		return nil, err
	}

	select {
	case <-s.HeadersReady():
	case <-conn.Done():
		return nil, conn.LastErr()
	}

	if s.StatusCode() != 200 {
		return nil, ErrUnexpectedStatus
	}

	rw := newStreamRW(conn, s)
	return websocket.NewConn(rw, rw, true, 0), nil
}

// Accept validates an incoming stream as an Extended CONNECT WebSocket
// request, replies 200, and returns a ready-to-use websocket.Conn. The
// caller is expected to have already taken s off Conn's completion
// channel (or otherwise know its headers are fully received) — Accept
// does not itself wait for END_HEADERS.
func Accept(conn *http2.Conn, s *http2.Stream) (*websocket.Conn, error) {
	if s.Method() != "CONNECT" {
		return nil, ErrNotExtendedConnect
	}

	var proto, version string
	for _, f := range s.Headers() {
		switch f.Key() {
		case ":protocol":
			proto = f.Value()
		case "sec-websocket-version":
			version = f.Value()
		}
	}
	if proto != "websocket" {
		return nil, ErrNotExtendedConnect
	}
	if version != "" && version != websocketVersion {
		return nil, ErrUnsupportedVersion
	}

	var status http2.HeaderField
	status.SetBytes([]byte(":status"), []byte("200"))
	if err := conn.SendResponseHeaders(s, []http2.HeaderField{status}); err != nil {
		return nil, err
	}

	rw := newStreamRW(conn, s)
	return websocket.NewConn(rw, rw, false, 0), nil
}

// Handler processes one accepted tunnel; implementations typically loop
// on ws.ReadMessage()/ws.WriteMessage() for the lifetime of the session.
type Handler func(ws *websocket.Conn)

// Serve accepts an HTTP/2 connection on nc (already past TLS/ALPN
// negotiation with "h2" and, ideally, the "websocket" value advertised
// in SETTINGS_ENABLE_CONNECT_PROTOCOL) and dispatches every Extended
// CONNECT stream that arrives to handler, one goroutine per tunnel. Any
// non-CONNECT stream is rejected with a 400 response and otherwise
// ignored — this server speaks tunnels only, not general HTTP/2.
func Serve(nc net.Conn, params http2.Http2Params, handler Handler) error {
	if params.MaxFrameLen == 0 {
		params = http2.DefaultHttp2Params()
	}
	params.EnableConnectProto = true

	conn := http2.NewConn(nc, false, params)
	completions := conn.EnableCompletions(int(params.MaxConcurrentStreams))
	if err := conn.Accept(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case s := <-completions:
				go acceptOne(conn, s, handler)
			case <-conn.Done():
				for {
					select {
					case s := <-completions:
						go acceptOne(conn, s, handler)
					default:
						return
					}
				}
			}
		}
	}()

	conn.ReadLoop()
	<-done
	return conn.LastErr()
}

func acceptOne(conn *http2.Conn, s *http2.Stream, handler Handler) {
	ws, err := Accept(conn, s)
	if err != nil {
		var status http2.HeaderField
		status.SetBytes([]byte(":status"), []byte("400"))
		_ = conn.SendResponseHeaders(s, []http2.HeaderField{status})
		return
	}
	handler(ws)
}
