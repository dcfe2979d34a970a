package http2

import "github.com/domsolutions/wtxgo/http2/http2utils"

const (
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
	settingEnableConnectProto   uint16 = 0x8
)

// Http2Params are the receive-side advertised limits a connection
// negotiates via SETTINGS (spec §3).
type Http2Params struct {
	InitialWindowSize    uint32
	MaxBodyLen           uint32
	MaxConcurrentStreams uint32
	MaxFrameLen          uint32
	MaxHeadersLen        uint32
	MaxHPACKTableLen     uint32
	EnableConnectProto   bool
}

// DefaultHttp2Params returns the default limit table from spec §3.
func DefaultHttp2Params() Http2Params {
	return Http2Params{
		InitialWindowSize:    65535,
		MaxBodyLen:           4 << 20,
		MaxConcurrentStreams: 128,
		MaxFrameLen:          16384,
		MaxHeadersLen:        8 << 10,
		MaxHPACKTableLen:     4096,
	}
}

// Clamp enforces the [16384, 16777215] bound on MaxFrameLen.
func (p *Http2Params) Clamp() {
	const lo, hi = 16384, 16777215
	if p.MaxFrameLen < lo {
		p.MaxFrameLen = lo
	}
	if p.MaxFrameLen > hi {
		p.MaxFrameLen = hi
	}
}

var _ Frame = (*Settings)(nil)

// Settings is SETTINGS (RFC 7540 §6.5): a stream of 16-bit id / 32-bit
// value pairs negotiating connection parameters.
type Settings struct {
	ack bool

	HeaderTableSize      uint32
	DisablePush          bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
	EnableConnectProto   bool

	hasHeaderTableSize      bool
	hasMaxConcurrentStreams bool
	hasInitialWindowSize    bool
	hasMaxFrameSize         bool
	hasMaxHeaderListSize    bool
	hasEnableConnectProto   bool
}

func (s *Settings) Type() FrameType { return FrameSettings }

func (s *Settings) Reset() { *s = Settings{} }

func (s *Settings) IsAck() bool     { return s.ack }
func (s *Settings) SetAck(v bool)   { s.ack = v }

func (s *Settings) Deserialize(fr *FrameHeader) error {
	if fr.Flags().Has(FlagAck) {
		s.ack = true
		return nil
	}
	if len(fr.payload)%6 != 0 {
		return ErrMissingBytes
	}
	for b := fr.payload; len(b) > 0; b = b[6:] {
		id := uint16(b[0])<<8 | uint16(b[1])
		val := http2utils.BytesToUint32(b[2:6])
		switch id {
		case settingHeaderTableSize:
			s.HeaderTableSize, s.hasHeaderTableSize = val, true
		case settingEnablePush:
			s.DisablePush = val == 0
		case settingMaxConcurrentStreams:
			s.MaxConcurrentStreams, s.hasMaxConcurrentStreams = val, true
		case settingInitialWindowSize:
			s.InitialWindowSize, s.hasInitialWindowSize = val, true
		case settingMaxFrameSize:
			s.MaxFrameSize, s.hasMaxFrameSize = val, true
		case settingMaxHeaderListSize:
			s.MaxHeaderListSize, s.hasMaxHeaderListSize = val, true
		case settingEnableConnectProto:
			s.EnableConnectProto, s.hasEnableConnectProto = val != 0, true
		}
	}
	return nil
}

func (s *Settings) Serialize(fr *FrameHeader) {
	if s.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.setPayload(nil)
		return
	}

	var payload []byte
	appendSetting := func(id uint16, val uint32) {
		payload = append(payload, byte(id>>8), byte(id))
		payload = http2utils.AppendUint32Bytes(payload, val)
	}
	if s.hasHeaderTableSize {
		appendSetting(settingHeaderTableSize, s.HeaderTableSize)
	}
	if s.DisablePush {
		appendSetting(settingEnablePush, 0)
	}
	if s.hasMaxConcurrentStreams {
		appendSetting(settingMaxConcurrentStreams, s.MaxConcurrentStreams)
	}
	if s.hasInitialWindowSize {
		appendSetting(settingInitialWindowSize, s.InitialWindowSize)
	}
	if s.hasMaxFrameSize {
		appendSetting(settingMaxFrameSize, s.MaxFrameSize)
	}
	if s.hasMaxHeaderListSize {
		appendSetting(settingMaxHeaderListSize, s.MaxHeaderListSize)
	}
	if s.hasEnableConnectProto {
		v := uint32(0)
		if s.EnableConnectProto {
			v = 1
		}
		appendSetting(settingEnableConnectProto, v)
	}
	fr.setPayload(payload)
}

// FromParams fills in the outbound SETTINGS fields from an Http2Params,
// marking every field as present.
func (s *Settings) FromParams(p Http2Params) {
	s.HeaderTableSize, s.hasHeaderTableSize = p.MaxHPACKTableLen, true
	s.MaxConcurrentStreams, s.hasMaxConcurrentStreams = p.MaxConcurrentStreams, true
	s.InitialWindowSize, s.hasInitialWindowSize = p.InitialWindowSize, true
	s.MaxFrameSize, s.hasMaxFrameSize = p.MaxFrameLen, true
	s.MaxHeaderListSize, s.hasMaxHeaderListSize = p.MaxHeadersLen, true
	if p.EnableConnectProto {
		s.EnableConnectProto, s.hasEnableConnectProto = true, true
	}
	s.DisablePush = true
}

// AckSettings builds an empty SETTINGS frame with the ACK flag set.
func AckSettings() *Settings {
	return &Settings{ack: true}
}
