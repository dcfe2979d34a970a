package http2

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEchoRequestResponse exercises scenario S1 from the spec: a client
// opens stream 1, sends a POST with a small body, and a server echoes it
// back, asserting headers/body/state on both sides.
func TestEchoRequestResponse(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()

	params := DefaultHttp2Params()

	serverDone := make(chan error, 1)
	srv := &Server{Params: params, Handler: func(s *Stream, resp *ResponseWriter) {
		resp.SetStatus(200)
		resp.Write(s.Body())
	}}
	go func() { serverDone <- srv.ServeConn(serverRaw) }()

	client := NewConn(clientRaw, true, params)
	require.NoError(t, client.Handshake())
	go client.ReadLoop()

	cs := client.Stream()
	require.NoError(t, cs.SendReq("POST", "/", "example.com", "https", nil, []byte("hi")))

	select {
	case <-cs.ClosedCh():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to close")
	}

	assert.Equal(t, 200, cs.StatusCode())
	assert.Equal(t, "hi", string(cs.Body()))

	_ = client.SendGoAway(NoError, nil)
	_ = clientRaw.Close()
	_ = serverRaw.Close()

	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
	}
}

// TestServerRejectsForbiddenConnectionSpecificHeader is a regression test
// for HPACK validation being dead code on the real decode path: a
// request carrying a forbidden RFC 7540 §8.1.2.2 connection-specific
// header must fail the connection rather than being silently accepted.
func TestServerRejectsForbiddenConnectionSpecificHeader(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()

	params := DefaultHttp2Params()
	serverDone := make(chan error, 1)
	srv := &Server{Params: params, Handler: func(s *Stream, resp *ResponseWriter) {
		resp.SetStatus(200)
	}}
	go func() { serverDone <- srv.ServeConn(serverRaw) }()

	client := NewConn(clientRaw, true, params)
	require.NoError(t, client.Handshake())
	go client.ReadLoop()

	var conn HeaderField
	conn.SetBytes([]byte("connection"), []byte("keep-alive"))

	cs := client.Stream()
	_ = cs.SendReq("GET", "/", "example.com", "https", []HeaderField{conn}, nil)

	select {
	case err := <-serverDone:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not reject the forbidden header")
	}

	_ = clientRaw.Close()
	_ = serverRaw.Close()
}

func TestConnHandshakeBadPrefaceFails(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	params := DefaultHttp2Params()
	srv := NewConn(serverRaw, false, params)

	go func() {
		_, _ = clientRaw.Write([]byte("not the right preface............"))
	}()

	err := srv.Accept()
	assert.ErrorIs(t, err, ErrBadPreface)
}
