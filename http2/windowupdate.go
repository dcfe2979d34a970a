package http2

import "github.com/domsolutions/wtxgo/http2/http2utils"

var _ Frame = (*WindowUpdate)(nil)

// WindowUpdate is WINDOW_UPDATE (RFC 7540 §6.9): a flow-control credit
// deposit, scoped to the frame's stream id (0 = connection-level).
type WindowUpdate struct {
	increment uint32
}

func (w *WindowUpdate) Type() FrameType       { return FrameWindowUpdate }
func (w *WindowUpdate) Reset()                { w.increment = 0 }
func (w *WindowUpdate) Increment() uint32     { return w.increment }
func (w *WindowUpdate) SetIncrement(n uint32) { w.increment = n & (1<<31 - 1) }

func (w *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}
	w.increment = http2utils.BytesToUint32(fr.payload) & (1<<31 - 1)
	return nil
}

func (w *WindowUpdate) Serialize(fr *FrameHeader) {
	fr.setPayload(http2utils.AppendUint32Bytes(nil, w.increment))
}
