package http2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowsDepositWithdraw(t *testing.T) {
	w := NewWindows(100)
	require.NoError(t, w.Withdraw(40))
	assert.EqualValues(t, 60, w.Send())
	require.NoError(t, w.Deposit(10))
	assert.EqualValues(t, 70, w.Send())
}

func TestWindowsWithdrawInsufficientErrors(t *testing.T) {
	w := NewWindows(10)
	assert.ErrorIs(t, w.Withdraw(20), ErrFlowControl)
}

func TestWindowsDepositOverflowErrors(t *testing.T) {
	w := NewWindows(maxWindowSize - 1)
	assert.ErrorIs(t, w.Deposit(10), ErrFlowControl)
}

func TestWindowsPairWithdrawBothAtomic(t *testing.T) {
	cw := NewConnWindow(100)
	p := NewWindowsPair(cw, 50)
	require.NoError(t, p.WithdrawBoth(50))
	assert.EqualValues(t, 50, cw.window.Send())
	assert.EqualValues(t, 0, p.Stream.Send())

	// Stream window exhausted: further withdraw must fail without
	// touching the connection window.
	err := p.WithdrawBoth(1)
	assert.ErrorIs(t, err, ErrFlowControl)
	assert.EqualValues(t, 50, cw.window.Send())
}

func TestWindowsPairAvailableSendIsMin(t *testing.T) {
	cw := NewConnWindow(100)
	p := NewWindowsPair(cw, 10)
	assert.EqualValues(t, 10, p.AvailableSend())
}

func TestWindowsPairConsumeBoth(t *testing.T) {
	cw := NewConnWindow(100)
	p := NewWindowsPair(cw, 100)
	require.NoError(t, p.ConsumeBoth(30))
	assert.EqualValues(t, 70, cw.window.Recv())
	assert.EqualValues(t, 70, p.Stream.Recv())
}

// TestWindowsPairStreamRecvLowMustBeCheckedBeforeReplenish guards against
// checking the low-watermark after ReplenishStream has already reset recv
// to initial, which would make StreamRecvLow unconditionally false and
// silently suppress every WINDOW_UPDATE once more than initial/2 bytes are
// outstanding.
func TestWindowsPairStreamRecvLowMustBeCheckedBeforeReplenish(t *testing.T) {
	cw := NewConnWindow(1000)
	p := NewWindowsPair(cw, 100)

	require.NoError(t, p.ConsumeBoth(60))
	assert.True(t, p.StreamRecvLow(100), "recv (40) is below half of initial (50)")

	delta := p.ReplenishStream(100)
	assert.EqualValues(t, 60, delta)

	// Now that recv has been restored to initial, the watermark must read
	// as not-low; checking it in this order (after replenish) must never
	// be mistaken for the pre-replenish state.
	assert.False(t, p.StreamRecvLow(100))
}

func TestConnWindowRecvLowMustBeCheckedBeforeReplenish(t *testing.T) {
	cw := NewConnWindow(100)
	p := NewWindowsPair(cw, 1000)

	require.NoError(t, p.ConsumeBoth(60))
	assert.True(t, cw.RecvLow(100), "recv (40) is below half of initial (50)")

	delta := cw.ReplenishRecv(100)
	assert.EqualValues(t, 60, delta)
	assert.False(t, cw.RecvLow(100))
}

// TestStreamRecvLowOnlyBelowHalfWatermark checks the low-watermark signal
// that gates a WINDOW_UPDATE: consuming less than half the initial stream
// window must not report low, while crossing the half-watermark must.
func TestStreamRecvLowOnlyBelowHalfWatermark(t *testing.T) {
	cw := NewConnWindow(100)
	p := NewWindowsPair(cw, 100)

	require.NoError(t, p.ConsumeBoth(10))
	low := p.StreamRecvLow(100)
	assert.False(t, low, "10/100 consumed must not cross the half watermark")

	require.NoError(t, p.ConsumeBoth(50))
	low = p.StreamRecvLow(100)
	assert.True(t, low, "60/100 consumed must cross the half watermark")
}
