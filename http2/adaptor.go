package http2

import (
	"github.com/valyala/fasthttp"
)

// FasthttpAdaptor lets a Server drive an existing fasthttp.RequestHandler,
// translating between HTTP/2 Stream/ResponseWriter and fasthttp's
// Request/Response, the way the teacher's serverConn bridged frames into
// fasthttp.RequestCtx.
func FasthttpAdaptor(h fasthttp.RequestHandler) RequestHandler {
	return func(s *Stream, resp *ResponseWriter) {
		var ctx fasthttp.RequestCtx
		req := &ctx.Request
		req.Header.SetMethod(s.Method())
		req.SetRequestURI(s.Path())
		req.Header.SetProtocol("HTTP/2.0")

		for _, hf := range s.Headers() {
			if hf.IsPseudo() {
				continue
			}
			req.Header.Set(hf.Key(), hf.Value())
		}
		req.SetBody(s.Body())

		h(&ctx)

		resp.SetStatus(ctx.Response.StatusCode())
		ctx.Response.Header.VisitAll(func(k, v []byte) {
			resp.AddHeader(string(k), string(v))
		})
		resp.Write(ctx.Response.Body())
	}
}
