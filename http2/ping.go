package http2

var _ Frame = (*Ping)(nil)

// Ping is PING (RFC 7540 §6.7), used for RTT measurement and liveness.
type Ping struct {
	ack  bool
	data [8]byte
}

func (p *Ping) Type() FrameType { return FramePing }
func (p *Ping) Reset()          { p.ack = false; p.data = [8]byte{} }
func (p *Ping) Ack() bool       { return p.ack }
func (p *Ping) SetAck(v bool)   { p.ack = v }
func (p *Ping) Data() []byte    { return p.data[:] }
func (p *Ping) SetData(b []byte) { copy(p.data[:], b) }

func (p *Ping) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 8 {
		return ErrMissingBytes
	}
	p.ack = fr.Flags().Has(FlagAck)
	copy(p.data[:], fr.payload)
	return nil
}

func (p *Ping) Serialize(fr *FrameHeader) {
	if p.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
	}
	fr.setPayload(p.data[:])
}
