// Package postgres implements a PostgreSQL wire-protocol (v3) client:
// startup/auth, SCRAM-SHA-256(-PLUS), prepared statements, and pipelined
// batch execution, following the teacher's tag+length-prefixed framing
// idiom from the HTTP/2 package applied to Postgres's own message shapes.
package postgres

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Oid is a Postgres object identifier (a parameter or column type).
type Oid uint32

// Tag is the single-byte message type identifier Postgres messages not
// followed by "no tag" (the startup message is the only exception) carry.
type Tag byte

const (
	TagAuthentication    Tag = 'R'
	TagBackendKeyData    Tag = 'K'
	TagBindComplete      Tag = '2'
	TagCommandComplete   Tag = 'C'
	TagDataRow           Tag = 'D'
	TagEmptyQueryResp    Tag = 'I'
	TagErrorResponse     Tag = 'E'
	TagNoData            Tag = 'n'
	TagNoticeResponse    Tag = 'N'
	TagParameterStatus   Tag = 'S'
	TagParameterDesc     Tag = 't'
	TagParseComplete     Tag = '1'
	TagReadyForQuery     Tag = 'Z'
	TagRowDescription    Tag = 'T'
	TagCloseComplete     Tag = '3'

	// Client -> server tags, reused on the wire with different meanings
	// than their server counterparts but kept distinct here for clarity.
	tagBind     Tag = 'B'
	tagClose    Tag = 'C'
	tagDescribe Tag = 'D'
	tagExecute  Tag = 'E'
	tagParse    Tag = 'P'
	tagPassword Tag = 'p'
	tagQuery    Tag = 'Q'
	tagSync     Tag = 'S'
	tagTerminate Tag = 'X'
)

const protocolVersion3 = 196608 // 3 << 16 | 0

// Writer accumulates outgoing messages into one buffer before a single
// socket write, matching the teacher's encode-then-flush pattern
// (http2/conn.go's writeFrameLocked writing a whole frame at once).
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 4096)} }

func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) Bytes() []byte { return w.buf }

// message writes tag (if non-zero) + a 4-byte length placeholder, runs
// cb to fill the body, then back-patches the length (including itself,
// per Postgres's wire convention).
func (w *Writer) message(tag Tag, cb func(w *Writer)) {
	if tag != 0 {
		w.buf = append(w.buf, byte(tag))
	}
	lenAt := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	cb(w)
	binary.BigEndian.PutUint32(w.buf[lenAt:], uint32(len(w.buf)-lenAt))
}

func (w *Writer) writeCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *Writer) writeBytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *Writer) writeByte(b byte)    { w.buf = append(w.buf, b) }
func (w *Writer) writeUint16(n uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	w.buf = append(w.buf, b[:]...)
}
func (w *Writer) writeInt32(n int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	w.buf = append(w.buf, b[:]...)
}
func (w *Writer) writeUint32(n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	w.buf = append(w.buf, b[:]...)
}

// StartupMessage writes the untagged startup message (protocol version +
// key/value parameter list, spec §4.12).
func (w *Writer) StartupMessage(user, database, appName string) {
	w.message(0, func(w *Writer) {
		w.writeUint32(protocolVersion3)
		w.writeCString("user")
		w.writeCString(user)
		if database != "" {
			w.writeCString("database")
			w.writeCString(database)
		}
		if appName != "" {
			w.writeCString("application_name")
			w.writeCString(appName)
		}
		w.writeCString("client_encoding")
		w.writeCString("UTF8")
		w.writeCString("DateStyle")
		w.writeCString("ISO")
		w.writeCString("TimeZone")
		w.writeCString("UTC")
		w.writeByte(0)
	})
}

// Parse writes a Parse ('P') message.
func (w *Writer) Parse(stmtName, query string, paramTypes []Oid) {
	w.message(tagParse, func(w *Writer) {
		w.writeCString(stmtName)
		w.writeCString(query)
		w.writeUint16(uint16(len(paramTypes)))
		for _, t := range paramTypes {
			w.writeUint32(uint32(t))
		}
	})
}

// Bind writes a Bind ('B') message. values holds each parameter's raw
// bytes, or nil to encode SQL NULL; all formats are binary per spec §4.12.
func (w *Writer) Bind(portal, stmtName string, values [][]byte) {
	w.message(tagBind, func(w *Writer) {
		w.writeCString(portal)
		w.writeCString(stmtName)
		w.writeUint16(uint16(len(values)))
		for range values {
			w.writeUint16(1) // binary format
		}
		w.writeUint16(uint16(len(values)))
		for _, v := range values {
			if v == nil {
				w.writeInt32(-1)
				continue
			}
			w.writeInt32(int32(len(v)))
			w.writeBytes(v)
		}
		w.writeUint16(1)
		w.writeUint16(1) // single binary result format
	})
}

// DescribeKind selects whether Describe targets a prepared statement or
// a portal (spec §4.12).
type DescribeKind byte

const (
	DescribeStatement DescribeKind = 'S'
	DescribePortal    DescribeKind = 'P'
)

func (w *Writer) Describe(kind DescribeKind, name string) {
	w.message(tagDescribe, func(w *Writer) {
		w.writeByte(byte(kind))
		w.writeCString(name)
	})
}

func (w *Writer) Execute(portal string, maxRows int32) {
	w.message(tagExecute, func(w *Writer) {
		w.writeCString(portal)
		w.writeInt32(maxRows)
	})
}

func (w *Writer) Sync() { w.message(tagSync, func(*Writer) {}) }

func (w *Writer) Terminate() { w.message(tagTerminate, func(*Writer) {}) }

func (w *Writer) Query(sql string) {
	w.message(tagQuery, func(w *Writer) { w.writeCString(sql) })
}

func (w *Writer) Close(kind DescribeKind, name string) {
	w.message(tagClose, func(w *Writer) {
		w.writeByte(byte(kind))
		w.writeCString(name)
	})
}

// SASLInitialResponse writes the SASLInitialResponse ('p') message: a
// mechanism name followed by the length-prefixed client-first message.
func (w *Writer) SASLInitialResponse(mechanism string, clientFirst []byte) {
	w.message(tagPassword, func(w *Writer) {
		w.writeCString(mechanism)
		w.writeInt32(int32(len(clientFirst)))
		w.writeBytes(clientFirst)
	})
}

// SASLResponse writes the SASLResponse ('p') message: raw payload bytes,
// no length prefix inside the body (the message length itself suffices).
func (w *Writer) SASLResponse(payload []byte) {
	w.message(tagPassword, func(w *Writer) { w.writeBytes(payload) })
}

// Message is one decoded server message: tag plus raw payload (the body
// after the 4-byte length, which itself is not re-included).
type Message struct {
	Tag     Tag
	Payload []byte
}

// ReadMessage reads one tag+length+payload server message from br (spec
// §4.12: "a small state machine that reads 5 bytes... reads payload, and
// dispatches by tag").
func ReadMessage(br *bufio.Reader) (Message, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return Message{}, err
	}
	tag := Tag(hdr[0])
	length := binary.BigEndian.Uint32(hdr[1:])
	if length < 4 {
		return Message{}, ErrMalformedMessage
	}
	bodyLen := int(length) - 4
	payload := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(br, payload); err != nil {
			return Message{}, err
		}
	}
	return Message{Tag: tag, Payload: payload}, nil
}

// cReader is a tiny cursor over a decoded message's payload, mirroring
// the field-at-a-time parsing idiom http2/headerfield.go uses for HPACK.
type cReader struct {
	b []byte
}

func (r *cReader) cstring() string {
	i := 0
	for i < len(r.b) && r.b[i] != 0 {
		i++
	}
	s := string(r.b[:i])
	if i < len(r.b) {
		i++
	}
	r.b = r.b[i:]
	return s
}

func (r *cReader) uint16() uint16 {
	if len(r.b) < 2 {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b)
	r.b = r.b[2:]
	return v
}

func (r *cReader) uint32() uint32 {
	if len(r.b) < 4 {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b)
	r.b = r.b[4:]
	return v
}

func (r *cReader) int32() int32 { return int32(r.uint32()) }

func (r *cReader) bytes(n int) []byte {
	if n < 0 || n > len(r.b) {
		n = len(r.b)
	}
	b := r.b[:n]
	r.b = r.b[n:]
	return b
}

func (r *cReader) remaining() []byte { return r.b }
