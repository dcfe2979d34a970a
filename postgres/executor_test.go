package postgres

import (
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/pbkdf2"
)

// fakeServer drives the server side of the wire protocol over one leg of
// a net.Pipe, reading/writing with the same Writer/ReadMessage primitives
// the real client uses.
type fakeServer struct {
	conn net.Conn
	br   *bufio.Reader
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{conn: conn, br: bufio.NewReader(conn)}
}

func (f *fakeServer) readMessage() Message {
	msg, err := ReadMessage(f.br)
	if err != nil {
		panic(err)
	}
	return msg
}

func (f *fakeServer) readStartup() {
	var hdr [4]byte
	if _, err := io.ReadFull(f.br, hdr[:]); err != nil {
		panic(err)
	}
	length := int(hdr[0])<<24 | int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	body := make([]byte, length-4)
	if _, err := io.ReadFull(f.br, body); err != nil {
		panic(err)
	}
}

func (f *fakeServer) send(w *Writer) {
	_, err := f.conn.Write(w.Bytes())
	if err != nil {
		panic(err)
	}
	w.Reset()
}

func TestExecutorConnectTrivialAuthOk(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fs := newFakeServer(server)
		fs.readStartup()

		authOkMsg := NewWriter()
		authOkMsg.message(TagAuthentication, func(w *Writer) { w.writeUint32(authOk) })
		fs.send(authOkMsg)

		ready := NewWriter()
		ready.message(TagParameterStatus, func(w *Writer) {
			w.writeCString("server_version")
			w.writeCString("16.0")
		})
		ready.message(TagBackendKeyData, func(w *Writer) {
			w.writeUint32(1234)
			w.writeUint32(5678)
		})
		ready.message(TagReadyForQuery, func(w *Writer) { w.writeByte('I') })
		fs.send(ready)
	}()

	exec := NewExecutor(client, 8)
	err := exec.Connect(Config{User: "alice", Database: "mydb"}, fixedRNG)
	require.NoError(t, err)
	assert.Equal(t, "16.0", exec.Params()["server_version"])
	<-done
}

func fixedRNG(b []byte) {
	for i := range b {
		b[i] = byte(i)
	}
}

func TestExecutorConnectSCRAM(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	const password = "secretpw"
	salt := []byte("0123456789abcdef")
	const iterations = 4096

	done := make(chan struct{})
	go func() {
		defer close(done)
		fs := newFakeServer(server)
		fs.readStartup()

		saslMsg := NewWriter()
		saslMsg.message(TagAuthentication, func(w *Writer) {
			w.writeUint32(authSASL)
			w.writeCString(mechSCRAMSHA256)
			w.writeByte(0)
		})
		fs.send(saslMsg)

		initial := fs.readMessage()
		r := cReader{b: initial.Payload}
		r.cstring() // mechanism name
		n := r.int32()
		clientFirst := r.bytes(int(n))
		clientFirstBare := strings.TrimPrefix(string(clientFirst), "n,,")

		serverNonceSuffix := "serverFixedNonceSuffix"
		parts := strings.SplitN(clientFirstBare, "r=", 2)
		clientNonce := parts[1]
		serverFirst := []byte("r=" + clientNonce + serverNonceSuffix + ",s=" + base64.StdEncoding.EncodeToString(salt) + ",i=4096")

		cont := NewWriter()
		cont.message(TagAuthentication, func(w *Writer) {
			w.writeUint32(authSASLContinue)
			w.writeBytes(serverFirst)
		})
		fs.send(cont)

		finalMsg := fs.readMessage()
		r = cReader{b: finalMsg.Payload}
		clientFinal := r.remaining()
		idx := strings.Index(string(clientFinal), ",p=")
		require.True(t, idx > 0)
		clientFinalWithoutProof := clientFinal[:idx]

		saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
		authMessage := joinComma([]byte(clientFirstBare), serverFirst, clientFinalWithoutProof)
		serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
		v := hmacSHA256(serverKey, authMessage)

		saslFinal := NewWriter()
		saslFinal.message(TagAuthentication, func(w *Writer) {
			w.writeUint32(authSASLFinal)
			w.writeBytes([]byte("v=" + base64.StdEncoding.EncodeToString(v)))
		})
		fs.send(saslFinal)

		okMsg := NewWriter()
		okMsg.message(TagAuthentication, func(w *Writer) { w.writeUint32(authOk) })
		fs.send(okMsg)

		ready := NewWriter()
		ready.message(TagReadyForQuery, func(w *Writer) { w.writeByte('I') })
		fs.send(ready)
	}()

	exec := NewExecutor(client, 8)
	err := exec.Connect(Config{User: "alice", Database: "mydb", Password: password}, fixedRNG)
	require.NoError(t, err)
	<-done
}

func TestExecutorPrepareAndFetch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fs := newFakeServer(server)

		parse := fs.readMessage()
		assert.Equal(t, tagParse, parse.Tag)
		describe := fs.readMessage()
		assert.Equal(t, tagDescribe, describe.Tag)
		sync1 := fs.readMessage()
		assert.Equal(t, tagSync, sync1.Tag)

		reply := NewWriter()
		reply.message(TagParseComplete, func(*Writer) {})
		reply.message(TagParameterDesc, func(w *Writer) { w.writeUint16(0) })
		reply.message(TagNoData, func(*Writer) {})
		reply.message(TagReadyForQuery, func(w *Writer) { w.writeByte('I') })
		fs.send(reply)

		bind := fs.readMessage()
		assert.Equal(t, tagBind, bind.Tag)
		execute := fs.readMessage()
		assert.Equal(t, tagExecute, execute.Tag)
		sync2 := fs.readMessage()
		assert.Equal(t, tagSync, sync2.Tag)

		result := NewWriter()
		result.message(TagBindComplete, func(*Writer) {})
		result.message(TagDataRow, func(w *Writer) {
			w.writeUint16(1)
			w.writeInt32(5)
			w.writeBytes([]byte("hello"))
		})
		result.message(TagCommandComplete, func(w *Writer) { w.writeCString("SELECT 1") })
		result.message(TagReadyForQuery, func(w *Writer) { w.writeByte('I') })
		fs.send(result)
	}()

	exec := NewExecutor(client, 8)
	stmtID, err := exec.Prepare("select 'hello'")
	require.NoError(t, err)

	row, err := exec.FetchWithStmt(stmtID, nil)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "hello", string(row.Columns[0]))
	<-done
}

func TestExecutorExecuteWithStmtParsesCommandCompleteRowCount(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	exec := NewExecutor(client, 8)
	exec.stmts.Insert(&Statement{ID: 42, Name: "wtxgo_stmt_16", SQL: "update t set x=1"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		fs := newFakeServer(server)
		fs.readMessage() // Bind
		fs.readMessage() // Execute
		fs.readMessage() // Sync

		result := NewWriter()
		result.message(TagBindComplete, func(*Writer) {})
		result.message(TagCommandComplete, func(w *Writer) { w.writeCString("UPDATE 3") })
		result.message(TagReadyForQuery, func(w *Writer) { w.writeByte('I') })
		fs.send(result)
	}()

	n, err := exec.ExecuteWithStmt(42, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	<-done
}
