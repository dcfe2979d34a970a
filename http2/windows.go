package http2

import "sync"

// ErrFlowControl is returned when a WINDOW_UPDATE increment would overflow
// the 31-bit signed window (RFC 7540 §6.9.1), and when a withdrawal or
// consumption asks for more than the window holds.
var ErrFlowControl = NewError(FlowControlError, "flow control window overflow")

const maxWindowSize = 1<<31 - 1

// Windows is a single flow-control window (connection- or stream-scoped).
// send tracks how much we may still transmit; recv tracks how much the
// peer has granted us headroom to receive before we must reclaim it with
// our own WINDOW_UPDATE.
type Windows struct {
	send int32
	recv int32
}

func NewWindows(initial int32) Windows {
	return Windows{send: initial, recv: initial}
}

// Deposit credits n bytes to the send window (on receiving a peer
// WINDOW_UPDATE). Saturates-errors rather than wrapping on overflow.
func (w *Windows) Deposit(n int32) error {
	if int64(w.send)+int64(n) > maxWindowSize {
		return ErrFlowControl
	}
	w.send += n
	return nil
}

// Withdraw debits n bytes from the send window (after transmitting a
// DATA frame payload of that size).
func (w *Windows) Withdraw(n int32) error {
	if w.send < n {
		return ErrFlowControl
	}
	w.send -= n
	return nil
}

// Consume debits n bytes from the recv window (on receiving a DATA frame
// payload of that size), failing with ErrFlowControl and leaving the
// window unchanged if it holds fewer than n bytes.
func (w *Windows) Consume(n int32) error {
	if w.recv < n {
		return ErrFlowControl
	}
	w.recv -= n
	return nil
}

// Replenish credits the recv window back after the local side has
// consumed and acknowledged n bytes of DATA (i.e. we are about to send a
// WINDOW_UPDATE for n).
func (w *Windows) Replenish(n int32) {
	w.recv += n
}

func (w *Windows) Send() int32 { return w.send }
func (w *Windows) Recv() int32 { return w.recv }

// ConnWindow is the single connection-scoped flow-control window, shared
// by every stream on a Conn under one lock (spec §4.5/§5: "a WindowsPair
// holds references to connection windows and one stream's windows and
// applies deposits/withdrawals to both atomically within a lock").
type ConnWindow struct {
	mu     sync.Mutex
	window Windows
}

func NewConnWindow(initial int32) *ConnWindow {
	return &ConnWindow{window: NewWindows(initial)}
}

// WindowsPair couples one stream's window with a pointer to the shared
// connection window: a DATA frame must be accounted against both before
// it may be sent or accepted.
type WindowsPair struct {
	mu     sync.Mutex
	Conn   *ConnWindow
	Stream Windows
}

func NewWindowsPair(conn *ConnWindow, streamInitial int32) *WindowsPair {
	return &WindowsPair{Conn: conn, Stream: NewWindows(streamInitial)}
}

// WithdrawBoth debits n bytes from both the stream and connection send
// windows as a single critical section, failing (and changing neither)
// if either is insufficient.
func (p *WindowsPair) WithdrawBoth(n int32) error {
	p.mu.Lock()
	p.Conn.mu.Lock()
	defer p.Conn.mu.Unlock()
	defer p.mu.Unlock()
	if p.Stream.send < n || p.Conn.window.send < n {
		return ErrFlowControl
	}
	p.Stream.send -= n
	p.Conn.window.send -= n
	return nil
}

// DepositConn credits the connection send window (peer WINDOW_UPDATE on
// stream 0).
func (p *WindowsPair) DepositConn(n int32) error {
	p.Conn.mu.Lock()
	defer p.Conn.mu.Unlock()
	return p.Conn.window.Deposit(n)
}

// DepositStream credits the stream send window (peer WINDOW_UPDATE on a
// non-zero stream id).
func (p *WindowsPair) DepositStream(n int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Stream.Deposit(n)
}

// ConsumeBoth debits n bytes from both recv windows on an inbound DATA
// frame payload.
func (p *WindowsPair) ConsumeBoth(n int32) error {
	p.mu.Lock()
	p.Conn.mu.Lock()
	defer p.Conn.mu.Unlock()
	defer p.mu.Unlock()
	if err := p.Stream.Consume(n); err != nil {
		return err
	}
	return p.Conn.window.Consume(n)
}

// AvailableSend reports how many bytes may currently be sent, bounded by
// both windows.
func (p *WindowsPair) AvailableSend() int32 {
	p.mu.Lock()
	p.Conn.mu.Lock()
	defer p.Conn.mu.Unlock()
	defer p.mu.Unlock()
	if p.Stream.send < p.Conn.window.send {
		return p.Stream.send
	}
	return p.Conn.window.send
}

// StreamRecvLow reports whether the stream recv window has fallen below
// half of initial, the trigger spec §4.5 uses to emit an unsolicited
// WINDOW_UPDATE.
func (p *WindowsPair) StreamRecvLow(initial int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Stream.recv < initial/2
}

// ReplenishStream restores the stream recv window to initial and returns
// the delta that must be sent as a WINDOW_UPDATE increment.
func (p *WindowsPair) ReplenishStream(initial int32) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	delta := initial - p.Stream.recv
	p.Stream.recv = initial
	return delta
}

// RecvLow and ReplenishRecv are the connection-scope equivalents,
// called by the reader task against stream 0's implicit window.
func (c *ConnWindow) RecvLow(initial int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.recv < initial/2
}

func (c *ConnWindow) ReplenishRecv(initial int32) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	delta := initial - c.window.recv
	c.window.recv = initial
	return delta
}

// depositSend credits the connection send window directly, used by the
// reader when a WINDOW_UPDATE arrives on stream 0.
func (c *ConnWindow) depositSend(n int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.Deposit(n)
}
