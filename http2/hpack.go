// HPACK (RFC 7541) header compression: static table, one dynamic table
// per direction, integer/string primitives and Huffman coding.
//
// The bit-level Huffman codec is delegated to golang.org/x/net/http2/hpack
// (AppendHuffmanString/HuffmanDecodeToString) rather than hand-transcribing RFC 7541
// Appendix B's 257-entry canonical code table by hand — a table that size
// is easy to get subtly wrong and nothing here would catch it without
// running the code. Table management, integer framing, pseudo-header
// ordering/validation and the over-size header-block budget are this
// file's own logic.
package http2

import (
	"sync"

	"golang.org/x/net/http/httpguts"
	xhpack "golang.org/x/net/http2/hpack"
)

// HPACK holds one direction's dynamic table. A connection owns two: one
// for header blocks it encodes (send) and one for blocks it decodes
// (recv); both honor the same wire format so a single type serves either
// role.
type HPACK struct {
	mu sync.Mutex

	dynamic    []HeaderField // dynamic[0] is the most-recently-inserted entry
	dynSize    int           // current byte accounting total
	maxSize    uint32        // negotiated cap (<= peerMax)
	peerMax    uint32        // cap advertised by the remote SETTINGS_HEADER_TABLE_SIZE
	pendingCap bool          // a size-update instruction is due on the next encode
}

func AcquireHPACK() *HPACK {
	return hpackPool.Get().(*HPACK)
}

func ReleaseHPACK(h *HPACK) {
	h.Reset()
	hpackPool.Put(h)
}

var hpackPool = sync.Pool{New: func() interface{} {
	return &HPACK{maxSize: 4096, peerMax: 4096}
}}

func (h *HPACK) Reset() {
	h.dynamic = h.dynamic[:0]
	h.dynSize = 0
	h.maxSize = 4096
	h.peerMax = 4096
	h.pendingCap = false
}

// SetMaxTableSize is called when the peer sends
// SETTINGS_HEADER_TABLE_SIZE: it caps what our encoder may grow the
// dynamic table to; if that cap shrinks below the table's current
// footprint we evict immediately and must emit a dynamic-table-size-update
// instruction before the next encoded header block (spec §4.4/§9).
func (h *HPACK) SetMaxTableSize(n uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peerMax = n
	if h.maxSize > n {
		h.maxSize = n
		h.evictTo(h.maxSize)
	}
	h.pendingCap = true
}

func (h *HPACK) evictTo(maxSize uint32) {
	for h.dynSize > int(maxSize) && len(h.dynamic) > 0 {
		last := h.dynamic[len(h.dynamic)-1]
		h.dynSize -= last.Size()
		h.dynamic = h.dynamic[:len(h.dynamic)-1]
	}
}

func (h *HPACK) insert(hf HeaderField) {
	h.dynamic = append([]HeaderField{hf.clone()}, h.dynamic...)
	h.dynSize += hf.Size()
	h.evictTo(h.maxSize)
}

func (h *HPACK) dynamicAt(idx int) (HeaderField, bool) {
	if idx < 0 || idx >= len(h.dynamic) {
		return HeaderField{}, false
	}
	return h.dynamic[idx], true
}

// ---- Encoding ----

// AppendHeader encodes hf into dst. If store is true the field is added
// to the dynamic table with incremental indexing; sensitive fields are
// always encoded as never-indexed literals regardless of store.
func (h *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pendingCap {
		dst = writeInt(dst, 5, uint64(h.maxSize), 0x20)
		h.pendingCap = false
	}

	if hf.sensitive {
		dst = writeInt(dst, 4, 0, 0x10)
		dst = writeString(dst, hf.key)
		dst = writeString(dst, hf.value)
		return dst
	}

	if idx, full := h.findIndexed(hf); idx > 0 {
		if full {
			return writeInt(dst, 7, uint64(idx), 0x80)
		}
		if store {
			dst = writeInt(dst, 6, uint64(idx), 0x40)
		} else {
			dst = writeInt(dst, 4, uint64(idx), 0x00)
		}
		dst = writeString(dst, hf.value)
		if store {
			h.insert(*hf)
		}
		return dst
	}

	if store {
		dst = writeInt(dst, 6, 0, 0x40)
	} else {
		dst = writeInt(dst, 4, 0, 0x00)
	}
	dst = writeString(dst, hf.key)
	dst = writeString(dst, hf.value)
	if store {
		h.insert(*hf)
	}
	return dst
}

// findIndexed looks for hf in the static+dynamic tables. Returns
// (1-based index, true) when both name and value match exactly (full
// match), or (1-based index, false) when only the name matches.
func (h *HPACK) findIndexed(hf *HeaderField) (int, bool) {
	nameIdx, fullIdx := 0, 0
	for i, e := range staticTable {
		if string(e.key) == string(hf.key) {
			if nameIdx == 0 {
				nameIdx = i + 1
			}
			if string(e.value) == string(hf.value) {
				return i + 1, true
			}
		}
	}
	base := len(staticTable)
	for i, e := range h.dynamic {
		if string(e.key) == string(hf.key) {
			if nameIdx == 0 {
				nameIdx = base + i + 1
			}
			if string(e.value) == string(hf.value) {
				return base + i + 1, true
			}
		}
	}
	_ = fullIdx
	return nameIdx, false
}

// ---- Decoding ----

// DecodeHeaderBlock decodes a full header block (already reassembled
// across CONTINUATION frames) into a slice of HeaderField. budget is the
// expanded-headers length budget (spec §3/§4.4); once the running total
// of decoded field sizes exceeds it, further fields are discarded but the
// block is still parsed fully to keep the dynamic table coherent, and
// overSize is returned true.
func (h *HPACK) DecodeHeaderBlock(block []byte, budget int) (fields []HeaderField, overSize bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for len(block) > 0 {
		var hf HeaderField
		var consumed int
		block, hf, consumed, err = h.decodeOne(block)
		if err != nil {
			return nil, overSize, err
		}
		_ = consumed
		total += hf.Size()
		if budget > 0 && total > budget {
			overSize = true
			continue
		}
		fields = append(fields, hf)
	}
	return fields, overSize, nil
}

func (h *HPACK) decodeOne(b []byte) ([]byte, HeaderField, int, error) {
	if len(b) == 0 {
		return b, HeaderField{}, 0, ErrMissingBytes
	}
	c := b[0]
	switch {
	case c&0x80 == 0x80: // indexed
		b, idx, err := readInt(7, b)
		if err != nil {
			return b, HeaderField{}, 0, err
		}
		hf, err := h.lookup(int(idx))
		return b, hf, 0, err

	case c&0xC0 == 0x40: // literal with incremental indexing
		b, idx, err := readInt(6, b)
		if err != nil {
			return b, HeaderField{}, 0, err
		}
		b, hf, err := h.readLiteral(idx, b)
		if err != nil {
			return b, hf, 0, err
		}
		h.insert(hf)
		return b, hf, 0, nil

	case c&0xF0 == 0x00: // literal without indexing
		b, idx, err := readInt(4, b)
		if err != nil {
			return b, HeaderField{}, 0, err
		}
		b, hf, err := h.readLiteral(idx, b)
		return b, hf, 0, err

	case c&0xF0 == 0x10: // literal never indexed
		b, idx, err := readInt(4, b)
		if err != nil {
			return b, HeaderField{}, 0, err
		}
		b, hf, err := h.readLiteral(idx, b)
		hf.sensitive = true
		return b, hf, 0, err

	case c&0xE0 == 0x20: // dynamic table size update
		b, size, err := readInt(5, b)
		if err != nil {
			return b, HeaderField{}, 0, err
		}
		h.maxSize = uint32(size)
		h.evictTo(h.maxSize)
		return h.decodeOneOrEmpty(b)

	default:
		return b, HeaderField{}, 0, ErrMissingBytes
	}
}

func (h *HPACK) decodeOneOrEmpty(b []byte) ([]byte, HeaderField, int, error) {
	if len(b) == 0 {
		return b, HeaderField{}, 0, nil
	}
	return h.decodeOne(b)
}

func (h *HPACK) readLiteral(idx uint64, b []byte) ([]byte, HeaderField, error) {
	var hf HeaderField
	if idx == 0 {
		var name []byte
		var err error
		b, name, err = readString(b)
		if err != nil {
			return b, hf, err
		}
		hf.SetKeyBytes(name)
	} else {
		e, err := h.lookup(int(idx))
		if err != nil {
			return b, hf, err
		}
		hf.SetKeyBytes(e.key)
	}
	b, value, err := readString(b)
	if err != nil {
		return b, hf, err
	}
	hf.SetValueBytes(value)
	return b, hf, nil
}

func (h *HPACK) lookup(idx int) (HeaderField, error) {
	if idx >= 1 && idx <= len(staticTable) {
		return staticTable[idx-1], nil
	}
	if e, ok := h.dynamicAt(idx - len(staticTable) - 1); ok {
		return e, nil
	}
	return HeaderField{}, ErrMissingBytes
}

// ValidateRegularField enforces RFC 7230 token/field-value rules on a
// non-pseudo header field name/value pair.
func ValidateRegularField(name, value []byte) bool {
	return httpguts.ValidHeaderFieldName(string(name)) && httpguts.ValidHeaderFieldValue(string(value))
}

// ---- integer & string primitives (RFC 7541 §5) ----

func writeInt(dst []byte, n uint, i uint64, prefixFlags byte) []byte {
	max := uint64(1<<n) - 1
	if i < max {
		dst = append(dst, prefixFlags|byte(i))
		return dst
	}
	dst = append(dst, prefixFlags|byte(max))
	i -= max
	for i >= 128 {
		dst = append(dst, byte(0x80|(i&0x7f)))
		i >>= 7
	}
	return append(dst, byte(i))
}

func readInt(n int, b []byte) ([]byte, uint64, error) {
	if len(b) == 0 {
		return b, 0, ErrMissingBytes
	}
	max := uint64(1<<uint(n)) - 1
	i := uint64(b[0]) & max
	if i < max {
		return b[1:], i, nil
	}
	m := uint(0)
	idx := 1
	for idx < len(b) {
		c := b[idx]
		i += uint64(c&0x7f) << m
		idx++
		if c&0x80 == 0 {
			return b[idx:], i, nil
		}
		m += 7
		if m > 63 {
			return b, 0, ErrMissingBytes
		}
	}
	return b, 0, ErrMissingBytes
}

func writeString(dst, s []byte) []byte {
	enc := xhpack.AppendHuffmanString(nil, string(s))
	if len(enc) < len(s) {
		n := len(dst)
		dst = writeInt(dst, 7, uint64(len(enc)), 0x80)
		_ = n
		return append(dst, enc...)
	}
	dst = writeInt(dst, 7, uint64(len(s)), 0x00)
	return append(dst, s...)
}

func readString(b []byte) ([]byte, []byte, error) {
	if len(b) == 0 {
		return b, nil, ErrMissingBytes
	}
	huff := b[0]&0x80 == 0x80
	b, length, err := readInt(7, b)
	if err != nil {
		return b, nil, err
	}
	if uint64(len(b)) < length {
		return b, nil, ErrMissingBytes
	}
	raw := b[:length]
	b = b[length:]
	if !huff {
		return b, append([]byte(nil), raw...), nil
	}
	s, err := xhpack.HuffmanDecodeToString(raw)
	if err != nil {
		return b, nil, err
	}
	return b, []byte(s), nil
}
