package http2

import "github.com/domsolutions/wtxgo/http2/http2utils"

var _ Frame = (*Headers)(nil)

// Headers is the HEADERS frame (RFC 7540 §6.2). rawHeaders holds the raw
// HPACK-encoded header block fragment; if EndHeaders is false, the
// fragment continues in one or more CONTINUATION frames.
type Headers struct {
	padded     bool
	priority   bool
	streamDep  uint32
	weight     uint8
	endStream  bool
	endHeaders bool
	rawHeaders []byte
}

func (h *Headers) Type() FrameType { return FrameHeaders }

func (h *Headers) Reset() {
	h.padded = false
	h.priority = false
	h.streamDep = 0
	h.weight = 0
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

func (h *Headers) EndStream() bool     { return h.endStream }
func (h *Headers) SetEndStream(v bool) { h.endStream = v }
func (h *Headers) EndHeaders() bool    { return h.endHeaders }
func (h *Headers) SetEndHeaders(v bool) { h.endHeaders = v }
func (h *Headers) HeaderBlock() []byte { return h.rawHeaders }
func (h *Headers) SetHeaderBlock(b []byte) { h.rawHeaders = append(h.rawHeaders[:0], b...) }
func (h *Headers) AppendHeaderBlock(b []byte) { h.rawHeaders = append(h.rawHeaders, b...) }

func (h *Headers) Deserialize(fr *FrameHeader) error {
	flags := fr.Flags()
	payload := fr.payload

	if flags.Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrMissingBytes
		}
		h.priority = true
		h.streamDep = http2utils.BytesToUint32(payload) & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)
	return nil
}

func (h *Headers) Serialize(fr *FrameHeader) {
	if h.endStream {
		fr.SetFlags(fr.Flags().Add(FlagEndStream))
	}
	if h.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	payload := h.rawHeaders
	if h.priority {
		fr.SetFlags(fr.Flags().Add(FlagPriority))
		prefix := make([]byte, 5)
		http2utils.Uint32ToBytes(prefix[:4], h.streamDep)
		prefix[4] = h.weight
		payload = append(prefix, payload...)
	}
	if h.padded {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		payload = http2utils.AddPadding(payload)
	}
	fr.setPayload(payload)
}
