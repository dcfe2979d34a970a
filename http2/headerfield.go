package http2

import "sync"

// HeaderField is a single HPACK header field: a key/value pair plus
// whether it was marked "never indexed" (sensitive).
type HeaderField struct {
	key, value []byte
	sensitive  bool
}

var headerFieldPool = sync.Pool{New: func() interface{} { return &HeaderField{} }}

func AcquireHeaderField() *HeaderField {
	hf := headerFieldPool.Get().(*HeaderField)
	hf.Reset()
	return hf
}

func ReleaseHeaderField(hf *HeaderField) { headerFieldPool.Put(hf) }

func (hf *HeaderField) Reset() {
	hf.key = hf.key[:0]
	hf.value = hf.value[:0]
	hf.sensitive = false
}

func (hf *HeaderField) Key() string        { return string(hf.key) }
func (hf *HeaderField) Value() string      { return string(hf.value) }
func (hf *HeaderField) KeyBytes() []byte   { return hf.key }
func (hf *HeaderField) ValueBytes() []byte { return hf.value }

func (hf *HeaderField) SetKeyBytes(b []byte)   { hf.key = append(hf.key[:0], b...) }
func (hf *HeaderField) SetValueBytes(b []byte) { hf.value = append(hf.value[:0], b...) }
func (hf *HeaderField) SetKey(s string)        { hf.SetKeyBytes([]byte(s)) }
func (hf *HeaderField) SetValue(s string)      { hf.SetValueBytes([]byte(s)) }

func (hf *HeaderField) SetBytes(k, v []byte) {
	hf.SetKeyBytes(k)
	hf.SetValueBytes(v)
}

func (hf *HeaderField) Sensitive() bool     { return hf.sensitive }
func (hf *HeaderField) SetSensitive(v bool) { hf.sensitive = v }

// IsPseudo reports whether the field's name begins with ':'.
func (hf *HeaderField) IsPseudo() bool {
	return len(hf.key) > 0 && hf.key[0] == ':'
}

// Size is the RFC 7541 §4.1 header field accounting size: name octets +
// value octets + 32.
func (hf *HeaderField) Size() int {
	return len(hf.key) + len(hf.value) + 32
}

func (hf *HeaderField) clone() HeaderField {
	return HeaderField{
		key:       append([]byte(nil), hf.key...),
		value:     append([]byte(nil), hf.value...),
		sensitive: hf.sensitive,
	}
}
