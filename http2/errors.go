package http2

import (
	"errors"
	"fmt"
)

// ErrorCode is an HTTP/2 error code as carried by RST_STREAM and GOAWAY
// frames (RFC 7540 §7).
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectionError      ErrorCode = 0xa
	EnhanceYourCalmError ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errorCodeNames = [...]string{
	"NO_ERROR", "PROTOCOL_ERROR", "INTERNAL_ERROR", "FLOW_CONTROL_ERROR",
	"SETTINGS_TIMEOUT", "STREAM_CLOSED", "FRAME_SIZE_ERROR", "REFUSED_STREAM",
	"CANCEL", "COMPRESSION_ERROR", "CONNECT_ERROR", "ENHANCE_YOUR_CALM",
	"INADEQUATE_SECURITY", "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN_ERROR(%d)", uint32(c))
}

// Error is a connection- or stream-fatal HTTP/2 error carrying a wire
// error code, matching spec §7's error taxonomy (ProtocolError,
// FlowControl, FrameSizeError, StreamReset, RefusedStream map 1:1 onto
// ErrorCode here).
type Error struct {
	Code ErrorCode
	Msg  string
}

func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

var (
	ErrMissingBytes    = errors.New("http2: missing bytes while decoding frame")
	ErrUnknownFrame    = errors.New("http2: unknown frame type")
	ErrBadPreface      = errors.New("http2: bad connection preface")
	ErrPayloadExceeds  = errors.New("http2: frame payload exceeds negotiated maximum size")
	ErrClosedConn      = errors.New("http2: connection is closed")
	ErrTooManyCont     = errors.New("http2: too many CONTINUATION frames for one HEADERS block")
	ErrHeadersTooLarge = errors.New("http2: expanded header block exceeds the configured budget")
)
