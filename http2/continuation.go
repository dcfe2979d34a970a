package http2

var _ Frame = (*Continuation)(nil)

// Continuation carries the continuation of a header block fragment begun
// by a HEADERS frame whose END_HEADERS flag was not set (RFC 7540 §6.10).
type Continuation struct {
	endHeaders bool
	rawHeaders []byte
}

func (c *Continuation) Type() FrameType { return FrameContinuation }

func (c *Continuation) Reset() {
	c.endHeaders = false
	c.rawHeaders = c.rawHeaders[:0]
}

func (c *Continuation) EndHeaders() bool      { return c.endHeaders }
func (c *Continuation) SetEndHeaders(v bool)  { c.endHeaders = v }
func (c *Continuation) HeaderBlock() []byte   { return c.rawHeaders }
func (c *Continuation) SetHeaderBlock(b []byte) { c.rawHeaders = append(c.rawHeaders[:0], b...) }

func (c *Continuation) Deserialize(fr *FrameHeader) error {
	c.endHeaders = fr.Flags().Has(FlagEndHeaders)
	c.rawHeaders = append(c.rawHeaders[:0], fr.payload...)
	return nil
}

func (c *Continuation) Serialize(fr *FrameHeader) {
	if c.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}
	fr.setPayload(c.rawHeaders)
}
