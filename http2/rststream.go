package http2

import "github.com/domsolutions/wtxgo/http2/http2utils"

var _ Frame = (*RstStream)(nil)

// RstStream is RST_STREAM (RFC 7540 §6.4): immediate stream termination
// with an error code, without affecting the rest of the connection.
type RstStream struct {
	code ErrorCode
}

func (r *RstStream) Type() FrameType  { return FrameResetStream }
func (r *RstStream) Reset()           { r.code = 0 }
func (r *RstStream) Code() ErrorCode  { return r.code }
func (r *RstStream) SetCode(c ErrorCode) { r.code = c }

func (r *RstStream) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		return ErrMissingBytes
	}
	r.code = ErrorCode(http2utils.BytesToUint32(fr.payload))
	return nil
}

func (r *RstStream) Serialize(fr *FrameHeader) {
	fr.setPayload(http2utils.AppendUint32Bytes(nil, uint32(r.code)))
}
