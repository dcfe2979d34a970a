package postgres

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDialer hands out one side of a fresh net.Pipe per Create/Recycle
// call, running a trivial-auth fake server on the other side so the pool
// can actually complete Connect(). net.Pipe is unbuffered, so the server
// goroutine keeps reading after ReadyForQuery instead of returning: an
// Executor.Close() call writes a Terminate message, and with nobody left
// to read it that write would block forever.
func pipeDialer(t *testing.T) Dialer {
	return func(cfg Config) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			fs := newFakeServer(server)
			fs.readStartup()

			authOkMsg := NewWriter()
			authOkMsg.message(TagAuthentication, func(w *Writer) { w.writeUint32(authOk) })
			fs.send(authOkMsg)

			ready := NewWriter()
			ready.message(TagReadyForQuery, func(w *Writer) { w.writeByte('I') })
			fs.send(ready)

			for {
				if _, err := ReadMessage(fs.br); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

func TestExecutorPoolGetConnectsAndRelease(t *testing.T) {
	ep := NewExecutorPool(2, Config{User: "alice"}, pipeDialer(t), 8, fixedRNG)

	pe, err := ep.Get(context.Background())
	require.NoError(t, err)
	require.False(t, pe.Executor().IsClosed())
	pe.Release()
}

func TestExecutorPoolExclusivity(t *testing.T) {
	ep := NewExecutorPool(1, Config{User: "alice"}, pipeDialer(t), 8, fixedRNG)

	pe1, err := ep.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	cancel()
	_, err = ep.Get(ctx)
	assert.Error(t, err)

	pe1.Release()
}

func TestExecutorPoolRecyclesClosedExecutor(t *testing.T) {
	ep := NewExecutorPool(1, Config{User: "alice"}, pipeDialer(t), 8, fixedRNG)

	pe1, err := ep.Get(context.Background())
	require.NoError(t, err)
	_ = pe1.Executor().Close()
	pe1.Release()

	pe2, err := ep.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, pe2.Executor().IsClosed())
	pe2.Release()
}
