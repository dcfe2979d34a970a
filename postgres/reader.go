package postgres

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/domsolutions/wtxgo/buffer"
)

// MessageReader decodes tag+length+payload server messages directly off
// a net.Conn, staging socket reads in a PartitionedFilledBuffer: the
// consumed message becomes antecedent (kept around so a caller building a
// connection-log line can still see the previous frame), the message
// being decoded is current, and bytes already read for the next message
// sit in following until ReadMessage is called again.
type MessageReader struct {
	conn net.Conn
	buf  *buffer.PartitionedFilledBuffer
}

// NewMessageReader wraps conn with a staging buffer of the given initial
// capacity (mirrors the bufio.NewReaderSize sizing the teacher used).
func NewMessageReader(conn net.Conn, capacity int) *MessageReader {
	return &MessageReader{conn: conn, buf: buffer.New(capacity)}
}

// ensureFollowing reads off the socket until at least n bytes are staged
// in the following region.
func (mr *MessageReader) ensureFollowing(n int) error {
	for len(mr.buf.Following()) < n {
		need := n - len(mr.buf.Following())
		read, err := mr.buf.ReadFrom(mr.conn.Read, need)
		if err != nil {
			return err
		}
		if read == 0 {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

// ReadMessage reads one tag+length+payload server message (spec §4.12's
// "a small state machine that reads 5 bytes... reads payload, and
// dispatches by tag"), advancing the buffer's partitions so the just-read
// message becomes current, the previous current joins antecedent, and any
// already-buffered bytes for the next message stay staged in following.
// When following is left empty, all three regions are reset to empty.
func (mr *MessageReader) ReadMessage() (Message, error) {
	if err := mr.ensureFollowing(5); err != nil {
		return Message{}, err
	}
	hdr := mr.buf.Following()[:5]
	tag := Tag(hdr[0])
	length := binary.BigEndian.Uint32(hdr[1:])
	if length < 4 {
		return Message{}, ErrMalformedMessage
	}

	total := 1 + int(length) // tag byte + length (which counts itself, not the tag)
	if err := mr.ensureFollowing(total); err != nil {
		return Message{}, err
	}

	following := mr.buf.Following()
	var payload []byte
	if total > 5 {
		payload = append([]byte(nil), following[5:total]...)
	}

	prevCurrentLen := len(mr.buf.Current())
	followingKeep := len(following) - total
	mr.buf.SetIndices(prevCurrentLen, total, followingKeep)
	mr.buf.ClearIfFollowingIsEmpty()

	return Message{Tag: tag, Payload: payload}, nil
}
