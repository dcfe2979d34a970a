package http2

import "github.com/domsolutions/wtxgo/http2/http2utils"

var _ Frame = (*Data)(nil)

// Data is the DATA frame (RFC 7540 §6.1): the body bytes of a request or
// response on a stream.
type Data struct {
	endStream bool
	padded    bool
	b         []byte
}

func (d *Data) Type() FrameType { return FrameData }

func (d *Data) Reset() {
	d.endStream = false
	d.padded = false
	d.b = d.b[:0]
}

func (d *Data) EndStream() bool        { return d.endStream }
func (d *Data) SetEndStream(v bool)    { d.endStream = v }
func (d *Data) Payload() []byte        { return d.b }
func (d *Data) SetPayload(b []byte)    { d.b = append(d.b[:0], b...) }
func (d *Data) Append(b []byte)        { d.b = append(d.b, b...) }
func (d *Data) Len() int               { return len(d.b) }

func (d *Data) Deserialize(fr *FrameHeader) error {
	payload := fr.payload
	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
	}
	d.endStream = fr.Flags().Has(FlagEndStream)
	d.b = append(d.b[:0], payload...)
	return nil
}

func (d *Data) Serialize(fr *FrameHeader) {
	if d.endStream {
		fr.SetFlags(fr.Flags().Add(FlagEndStream))
	}
	payload := d.b
	if d.padded {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		payload = http2utils.AddPadding(payload)
	}
	fr.setPayload(payload)
}
