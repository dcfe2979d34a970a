package postgres

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterStartupMessageLengthPrefix(t *testing.T) {
	w := NewWriter()
	w.StartupMessage("alice", "mydb", "wtxgo")
	buf := w.Bytes()

	require.Greater(t, len(buf), 4)
	length := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	assert.Equal(t, len(buf), length)
}

func TestWriterMessageBackpatchesLength(t *testing.T) {
	w := NewWriter()
	w.Sync()
	buf := w.Bytes()
	require.Len(t, buf, 5)
	assert.Equal(t, byte(tagSync), buf[0])
	assert.Equal(t, []byte{0, 0, 0, 4}, buf[1:5])
}

func TestReadMessageRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Query("select 1")
	br := bufio.NewReader(bytes.NewReader(w.Bytes()))

	msg, err := ReadMessage(br)
	require.NoError(t, err)
	assert.Equal(t, tagQuery, msg.Tag)

	r := cReader{b: msg.Payload}
	assert.Equal(t, "select 1", r.cstring())
}

func TestReadMessageRejectsShortLength(t *testing.T) {
	payload := []byte{byte(TagReadyForQuery), 0, 0, 0, 2}
	br := bufio.NewReader(bytes.NewReader(payload))
	_, err := ReadMessage(br)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestBindEncodesNullParameter(t *testing.T) {
	w := NewWriter()
	w.Bind("", "stmt1", [][]byte{nil, []byte("x")})
	br := bufio.NewReader(bytes.NewReader(w.Bytes()))

	msg, err := ReadMessage(br)
	require.NoError(t, err)
	assert.Equal(t, tagBind, msg.Tag)

	r := cReader{b: msg.Payload}
	assert.Equal(t, "", r.cstring())
	assert.Equal(t, "stmt1", r.cstring())
	assert.Equal(t, uint16(2), r.uint16())
	r.uint16()
	r.uint16()
	assert.Equal(t, uint16(2), r.uint16())
	assert.Equal(t, int32(-1), r.int32())
	assert.Equal(t, int32(1), r.int32())
	assert.Equal(t, []byte("x"), r.bytes(1))
}

func TestParseErrorResponseDecodesFields(t *testing.T) {
	w := NewWriter()
	body := []byte("SERROR\x00C42601\x00Msyntax error\x00Dnear \"foo\"\x00\x00")
	dbErr := parseErrorResponse(body)
	assert.Equal(t, "ERROR", dbErr.Severity)
	assert.Equal(t, "42601", dbErr.Code)
	assert.Equal(t, "syntax error", dbErr.Message)
	assert.Equal(t, "near \"foo\"", dbErr.Detail)
	_ = w
}
