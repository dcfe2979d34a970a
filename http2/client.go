package http2

import (
	"crypto/tls"
	"net"
)

// Dialer dials a TLS+TCP connection negotiated for "h2" and wraps it in
// a Conn (spec §4.8's client connect()).
type Dialer struct {
	Addr      string
	TLSConfig *tls.Config
	Params    Http2Params
}

var ErrServerSupport = NewError(HTTP11Required, "server did not negotiate h2")

func (d *Dialer) tlsConfig() *tls.Config {
	if d.TLSConfig != nil {
		return d.TLSConfig
	}
	return &tls.Config{NextProtos: []string{"h2"}}
}

// Dial connects, completes the TLS+ALPN handshake, then the HTTP/2
// preface/SETTINGS handshake, and spawns the frame-reader task.
func (d *Dialer) Dial() (*Conn, error) {
	raw, err := net.Dial("tcp", d.Addr)
	if err != nil {
		return nil, err
	}

	cfg := d.tlsConfig()
	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.Handshake(); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		_ = raw.Close()
		return nil, ErrServerSupport
	}

	params := d.Params
	if params.MaxFrameLen == 0 {
		params = DefaultHttp2Params()
	}

	c := NewConn(tlsConn, true, params)
	if err := c.Handshake(); err != nil {
		return nil, err
	}
	go c.ReadLoop()
	return c, nil
}

// ClientStream is a handle to a client-initiated request/response cycle.
type ClientStream struct {
	*Stream
	conn *Conn
}

// Stream opens a new client stream without sending anything yet.
func (c *Conn) Stream() *ClientStream {
	return &ClientStream{Stream: c.OpenStream(), conn: c}
}

// SendReq encodes and transmits the request headers (+ body, if any) for
// this stream.
func (cs *ClientStream) SendReq(method, path, authority, scheme string, headers []HeaderField, body []byte) error {
	return cs.conn.SendRequest(cs.Stream, method, path, authority, scheme, headers, body)
}
