package http2

import "github.com/domsolutions/wtxgo/http2/http2utils"

var _ Frame = (*GoAway)(nil)

// GoAway is GOAWAY (RFC 7540 §6.8): graceful connection shutdown
// announcing the last stream id the sender will process.
type GoAway struct {
	lastStreamID uint32
	code         ErrorCode
	debugData    []byte
}

func (g *GoAway) Type() FrameType { return FrameGoAway }

func (g *GoAway) Reset() {
	g.lastStreamID = 0
	g.code = 0
	g.debugData = g.debugData[:0]
}

func (g *GoAway) LastStreamID() uint32    { return g.lastStreamID }
func (g *GoAway) SetLastStreamID(id uint32) { g.lastStreamID = id & (1<<31 - 1) }
func (g *GoAway) Code() ErrorCode         { return g.code }
func (g *GoAway) SetCode(c ErrorCode)     { g.code = c }
func (g *GoAway) DebugData() []byte       { return g.debugData }
func (g *GoAway) SetDebugData(b []byte)   { g.debugData = append(g.debugData[:0], b...) }

func (g *GoAway) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 8 {
		return ErrMissingBytes
	}
	g.lastStreamID = http2utils.BytesToUint32(fr.payload) & (1<<31 - 1)
	g.code = ErrorCode(http2utils.BytesToUint32(fr.payload[4:]))
	if len(fr.payload) > 8 {
		g.debugData = append(g.debugData[:0], fr.payload[8:]...)
	}
	return nil
}

func (g *GoAway) Serialize(fr *FrameHeader) {
	payload := http2utils.AppendUint32Bytes(nil, g.lastStreamID)
	payload = http2utils.AppendUint32Bytes(payload, uint32(g.code))
	payload = append(payload, g.debugData...)
	fr.setPayload(payload)
}
