package websocket

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
)

// deflateTail is appended by a sender and stripped by a receiver around
// every deflate block (RFC 7692 §7.2.1): the LZ77 window's sync-flush
// marker that a receiver must restore before the next Inflate call.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// DeflateParams is the negotiated permessage-deflate extension
// parameters (RFC 7692 §7.1).
type DeflateParams struct {
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool
	ServerMaxWindowBits     int // 0 means unspecified/default (15)
	ClientMaxWindowBits     int
}

// ParseDeflateOffer parses a Sec-WebSocket-Extensions offer/response
// value such as:
//
//	permessage-deflate; client_max_window_bits; server_no_context_takeover
func ParseDeflateOffer(value string) (DeflateParams, bool) {
	parts := strings.Split(value, ";")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) != "permessage-deflate" {
		return DeflateParams{}, false
	}
	p := DeflateParams{ServerMaxWindowBits: 15, ClientMaxWindowBits: 15}
	for _, tok := range parts[1:] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name, val, hasVal := strings.Cut(tok, "=")
		name = strings.TrimSpace(name)
		val = strings.Trim(strings.TrimSpace(val), `"`)
		switch name {
		case "server_no_context_takeover":
			p.ServerNoContextTakeover = true
		case "client_no_context_takeover":
			p.ClientNoContextTakeover = true
		case "server_max_window_bits":
			if hasVal {
				if n, err := strconv.Atoi(val); err == nil {
					p.ServerMaxWindowBits = n
				}
			}
		case "client_max_window_bits":
			if hasVal {
				if n, err := strconv.Atoi(val); err == nil {
					p.ClientMaxWindowBits = n
				}
			}
		}
	}
	return p, true
}

// String renders params back into a Sec-WebSocket-Extensions token.
func (p DeflateParams) String() string {
	var b strings.Builder
	b.WriteString("permessage-deflate")
	if p.ServerNoContextTakeover {
		b.WriteString("; server_no_context_takeover")
	}
	if p.ClientNoContextTakeover {
		b.WriteString("; client_no_context_takeover")
	}
	if p.ServerMaxWindowBits != 0 && p.ServerMaxWindowBits != 15 {
		b.WriteString("; server_max_window_bits=")
		b.WriteString(strconv.Itoa(p.ServerMaxWindowBits))
	}
	if p.ClientMaxWindowBits != 0 && p.ClientMaxWindowBits != 15 {
		b.WriteString("; client_max_window_bits=")
		b.WriteString(strconv.Itoa(p.ClientMaxWindowBits))
	}
	return b.String()
}

// Deflate wraps a negotiated permessage-deflate session for one Conn.
// isClient determines which no_context_takeover flag governs our own
// compressor (we compress with OUR role's window and decompress with the
// peer's).
type Deflate struct {
	Params   DeflateParams
	isClient bool

	mu      sync.Mutex
	zw      *flate.Writer
	zr      io.ReadCloser
	zrBuf   *bytes.Buffer
	ourTakeoverOff  bool
	peerTakeoverOff bool
}

func NewDeflate(params DeflateParams, isClient bool) *Deflate {
	d := &Deflate{Params: params, isClient: isClient}
	if isClient {
		d.ourTakeoverOff = params.ClientNoContextTakeover
		d.peerTakeoverOff = params.ServerNoContextTakeover
	} else {
		d.ourTakeoverOff = params.ServerNoContextTakeover
		d.peerTakeoverOff = params.ClientNoContextTakeover
	}
	return d
}

// Compress deflates payload and strips the trailing sync-flush marker
// per RFC 7692 §7.2.1, resetting the sliding window first if
// no-context-takeover applies to our side.
func (d *Deflate) Compress(payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out bytes.Buffer
	if d.zw == nil || d.ourTakeoverOff {
		zw, err := flate.NewWriter(&out, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		d.zw = zw
	} else {
		d.zw.Reset(&out)
	}

	if _, err := d.zw.Write(payload); err != nil {
		return nil, err
	}
	if err := d.zw.Flush(); err != nil {
		return nil, err
	}

	b := out.Bytes()
	b = bytes.TrimSuffix(b, deflateTail)
	return append([]byte(nil), b...), nil
}

// Decompress restores the sync-flush tail and inflates, resetting the
// sliding window first if no-context-takeover applies to the peer.
func (d *Deflate) Decompress(payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	in := append(append([]byte(nil), payload...), deflateTail...)
	src := bytes.NewReader(in)

	if d.zr == nil || d.peerTakeoverOff {
		d.zr = flate.NewReader(src)
	} else if resetter, ok := d.zr.(flate.Resetter); ok {
		if err := resetter.Reset(src, nil); err != nil {
			return nil, err
		}
	} else {
		d.zr = flate.NewReader(src)
	}

	var out bytes.Buffer
	if _, err := io.Copy(&out, d.zr); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
