package http2

import "net"

// RequestHandler processes one fully-received server stream; it reads
// the request from s and writes the response via resp, matching the
// teacher's fasthttp.RequestHandler shape but against our own Stream.
type RequestHandler func(s *Stream, resp *ResponseWriter)

// ResponseWriter accumulates a server-side response for a single stream
// before it is flushed as HEADERS (+ DATA).
type ResponseWriter struct {
	StatusCode int
	Headers    []HeaderField
	Body       []byte
}

func (rw *ResponseWriter) SetStatus(code int) { rw.StatusCode = code }
func (rw *ResponseWriter) AddHeader(k, v string) {
	var hf HeaderField
	hf.SetBytes([]byte(k), []byte(v))
	rw.Headers = append(rw.Headers, hf)
}
func (rw *ResponseWriter) Write(p []byte) { rw.Body = append(rw.Body, p...) }

// Server serves HTTP/2 over already-TLS-negotiated connections.
type Server struct {
	Handler RequestHandler
	Params  Http2Params
}

// ServeConn performs the server-side preface/SETTINGS handshake, then
// dispatches each stream that completes (END_STREAM received) to
// Handler, one goroutine per stream (spec §4.8/§5: N short-lived request
// tasks alongside the one long-lived reader task).
func (srv *Server) ServeConn(nc net.Conn) error {
	params := srv.Params
	if params.MaxFrameLen == 0 {
		params = DefaultHttp2Params()
	}

	c := NewConn(nc, false, params)
	c.completeCh = make(chan *Stream, params.MaxConcurrentStreams)
	if err := c.Accept(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case s := <-c.completeCh:
				go srv.handle(c, s)
			case <-c.Done():
				// Drain any already-queued completions before exiting.
				for {
					select {
					case s := <-c.completeCh:
						go srv.handle(c, s)
					default:
						return
					}
				}
			}
		}
	}()

	c.ReadLoop()
	<-done
	return c.LastErr()
}

func (srv *Server) handle(c *Conn, s *Stream) {
	resp := &ResponseWriter{StatusCode: 200}
	if srv.Handler != nil {
		srv.Handler(s, resp)
	}

	fields := make([]HeaderField, 0, len(resp.Headers)+1)
	var status HeaderField
	status.SetBytes([]byte(":status"), []byte(statusText(resp.StatusCode)))
	fields = append(fields, status)
	fields = append(fields, resp.Headers...)

	_ = c.sendHeaders(s.ID(), fields, len(resp.Body) == 0)
	if len(resp.Body) > 0 {
		_ = c.SendData(s, resp.Body, true)
	}
}

func statusText(code int) string {
	const digits = "0123456789"
	if code <= 0 {
		code = 200
	}
	b := [3]byte{}
	b[0] = digits[(code/100)%10]
	b[1] = digits[(code/10)%10]
	b[2] = digits[code%10]
	return string(b[:])
}
