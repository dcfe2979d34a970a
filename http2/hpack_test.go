package http2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHPACKRoundTripStaticOnly(t *testing.T) {
	enc := AcquireHPACK()
	dec := AcquireHPACK()
	defer ReleaseHPACK(enc)
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetBytes([]byte(":method"), []byte("GET"))

	var block []byte
	block = enc.AppendHeader(block, hf, false)

	fields, over, err := dec.DecodeHeaderBlock(block, 0)
	require.NoError(t, err)
	assert.False(t, over)
	require.Len(t, fields, 1)
	assert.Equal(t, ":method", fields[0].Key())
	assert.Equal(t, "GET", fields[0].Value())
}

func TestHPACKDynamicTableInsertAndReuse(t *testing.T) {
	enc := AcquireHPACK()
	dec := AcquireHPACK()
	defer ReleaseHPACK(enc)
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetBytes([]byte("x-custom"), []byte("value-1"))

	var block []byte
	block = enc.AppendHeader(block, hf, true)
	fields, _, err := dec.DecodeHeaderBlock(block, 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "x-custom", fields[0].Key())
	assert.Equal(t, 1, len(dec.dynamic))

	// Second reference to the same name/value should now hit the full
	// index in the dynamic table.
	block = block[:0]
	block = enc.AppendHeader(block, hf, true)
	assert.LessOrEqual(t, len(block), 2, "fully indexed reference should be 1-2 bytes")
}

func TestHPACKTableSizeUpdateEvicts(t *testing.T) {
	h := AcquireHPACK()
	defer ReleaseHPACK(h)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetBytes([]byte("x-long-header-name"), []byte("a-fairly-long-header-value-here"))
	h.insert(*hf)
	require.NotZero(t, h.dynSize)

	h.SetMaxTableSize(8)
	assert.Equal(t, 0, len(h.dynamic))
	assert.Equal(t, 0, h.dynSize)
	assert.True(t, h.pendingCap)
}

func TestHPACKSensitiveFieldNeverIndexed(t *testing.T) {
	enc := AcquireHPACK()
	dec := AcquireHPACK()
	defer ReleaseHPACK(enc)
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetBytes([]byte("authorization"), []byte("secret-token"))
	hf.SetSensitive(true)

	var block []byte
	block = enc.AppendHeader(block, hf, true)
	assert.Equal(t, 0, len(enc.dynamic))

	fields, _, err := dec.DecodeHeaderBlock(block, 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.True(t, fields[0].Sensitive())
	assert.Equal(t, 0, len(dec.dynamic))
}

func TestHPACKOverSizeBudget(t *testing.T) {
	enc := AcquireHPACK()
	dec := AcquireHPACK()
	defer ReleaseHPACK(enc)
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetBytes([]byte("x-big"), []byte("0123456789"))

	var block []byte
	block = enc.AppendHeader(block, hf, false)

	fields, over, err := dec.DecodeHeaderBlock(block, 1)
	require.NoError(t, err)
	assert.True(t, over)
	assert.Empty(t, fields)
}

func TestValidateFieldNameForbidsConnectionSpecific(t *testing.T) {
	assert.False(t, ValidateFieldName([]byte("connection"), []byte("keep-alive")))
	assert.False(t, ValidateFieldName([]byte("te"), []byte("gzip")))
	assert.True(t, ValidateFieldName([]byte("te"), []byte("trailers")))
	assert.True(t, ValidateFieldName([]byte("content-type"), []byte("text/plain")))
}

func TestValidateHeaderBlockAcceptsOrdinaryRequest(t *testing.T) {
	var method, path HeaderField
	method.SetBytes([]byte(":method"), []byte("GET"))
	path.SetBytes([]byte(":path"), []byte("/"))
	var accept HeaderField
	accept.SetBytes([]byte("accept"), []byte("*/*"))
	assert.NoError(t, ValidateHeaderBlock([]HeaderField{method, path, accept}))
}

func TestValidateHeaderBlockRejectsPseudoAfterRegular(t *testing.T) {
	var accept, method HeaderField
	accept.SetBytes([]byte("accept"), []byte("*/*"))
	method.SetBytes([]byte(":method"), []byte("GET"))
	err := ValidateHeaderBlock([]HeaderField{accept, method})
	require.Error(t, err)
}

func TestValidateHeaderBlockRejectsDuplicatePseudo(t *testing.T) {
	var m1, m2 HeaderField
	m1.SetBytes([]byte(":method"), []byte("GET"))
	m2.SetBytes([]byte(":method"), []byte("POST"))
	err := ValidateHeaderBlock([]HeaderField{m1, m2})
	require.Error(t, err)
}

func TestValidateHeaderBlockRejectsUnknownPseudo(t *testing.T) {
	var bogus HeaderField
	bogus.SetBytes([]byte(":bogus"), []byte("x"))
	err := ValidateHeaderBlock([]HeaderField{bogus})
	require.Error(t, err)
}

func TestValidateHeaderBlockRejectsForbiddenConnSpecificField(t *testing.T) {
	var method, conn HeaderField
	method.SetBytes([]byte(":method"), []byte("GET"))
	conn.SetBytes([]byte("connection"), []byte("keep-alive"))
	err := ValidateHeaderBlock([]HeaderField{method, conn})
	require.Error(t, err)
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 5, 127, 128, 300, 16383, 16384, 1 << 20} {
		b := writeInt(nil, 7, v, 0)
		_, got, err := readInt(7, b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestStringRoundTripHuffmanAndRaw(t *testing.T) {
	for _, s := range []string{"", "www.example.com", "a", "gzip, deflate, br"} {
		b := writeString(nil, []byte(s))
		_, got, err := readString(b)
		require.NoError(t, err)
		assert.Equal(t, s, string(got))
	}
}
