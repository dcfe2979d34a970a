package postgres

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/domsolutions/wtxgo/calendar"
)

// Row is one DataRow: each element is the column's raw wire bytes, or nil
// for SQL NULL (spec §8's "Postgres NULL value" boundary case).
type Row struct {
	Columns [][]byte
}

func (r *Row) IsNull(i int) bool { return r.Columns[i] == nil }

// Records is the accumulated result of a fetch_many_with_stmt or one leg
// of a Batch flush.
type Records struct {
	Rows []*Row
}

// Executor is a single, strictly single-owner Postgres connection (spec
// §5: "callers serialize through an &mut Self" — there is no internal
// locking on the request path, only closeMu guarding the closed flag).
type Executor struct {
	conn net.Conn
	mr   *MessageReader
	w    *Writer

	stmts *StatementCache

	params      map[string]string
	backendPID  uint32
	backendKey  uint32
	connectedAt calendar.UTCTimestamp

	closeMu sync.Mutex
	closed  bool
}

func NewExecutor(conn net.Conn, stmtCacheCapacity int) *Executor {
	return &Executor{
		conn:   conn,
		mr:     NewMessageReader(conn, 16384),
		w:      NewWriter(),
		stmts:  NewStatementCache(stmtCacheCapacity),
		params: make(map[string]string),
	}
}

func (e *Executor) Params() map[string]string { return e.params }

// ConnectedAt returns the UTC instant Connect last completed successfully;
// the zero value if the executor has never connected.
func (e *Executor) ConnectedAt() calendar.UTCTimestamp { return e.connectedAt }

func (e *Executor) IsClosed() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	return e.closed
}

// fail transitions the executor to Closed per spec §4.13's "any protocol
// violation ... transitioned to Closed and all pending operations fail
// with ClosedConnection".
func (e *Executor) fail() {
	e.closeMu.Lock()
	if !e.closed {
		e.closed = true
		_ = e.conn.Close()
	}
	e.closeMu.Unlock()
}

func (e *Executor) flush() error {
	_, err := e.conn.Write(e.w.Bytes())
	e.w.Reset()
	if err != nil {
		e.fail()
	}
	return err
}

func (e *Executor) readMessage() (Message, error) {
	if e.IsClosed() {
		return Message{}, ErrClosedConnection
	}
	msg, err := e.mr.ReadMessage()
	if err != nil {
		e.fail()
		return Message{}, err
	}
	return msg, nil
}

// Connect performs the startup message, authentication (including SCRAM
// if requested), and drains ParameterStatus/BackendKeyData up to the
// first ReadyForQuery (spec §4.13's connect()).
func (e *Executor) Connect(cfg Config, rng func([]byte)) error {
	e.w.StartupMessage(cfg.User, cfg.Database, cfg.ApplicationName)
	if err := e.flush(); err != nil {
		return err
	}

	msg, err := e.readMessage()
	if err != nil {
		return err
	}
	if msg.Tag != TagAuthentication {
		e.fail()
		return ErrUnexpectedMessage
	}

	if err := e.handleAuthentication(msg.Payload, cfg, rng); err != nil {
		e.fail()
		return err
	}

	if err := e.drainUntilReady(); err != nil {
		return err
	}
	e.connectedAt = calendar.Now()
	return nil
}

const (
	authOk                uint32 = 0
	authSASL              uint32 = 10
	authSASLContinue      uint32 = 11
	authSASLFinal         uint32 = 12
)

func (e *Executor) handleAuthentication(payload []byte, cfg Config, rng func([]byte)) error {
	r := cReader{b: payload}
	kind := r.uint32()
	switch kind {
	case authOk:
		return nil
	case authSASL:
		mechanisms := strings.Split(strings.TrimRight(string(r.remaining()), "\x00"), "\x00")
		var clean []string
		for _, m := range mechanisms {
			if m != "" {
				clean = append(clean, m)
			}
		}
		return e.performSCRAM(clean, cfg, rng)
	default:
		return ErrAuthUnsupported
	}
}

func (e *Executor) performSCRAM(mechanisms []string, cfg Config, rng func([]byte)) error {
	mechanism, gs2Header, err := selectMechanism(mechanisms, cfg.ChannelBinding, len(cfg.TLSServerEndPoint) > 0)
	if err != nil {
		return err
	}

	nonce := randomNonce(rng)
	client := newSCRAMClient(gs2Header, nonce)

	e.w.SASLInitialResponse(mechanism, client.clientFirstMessage())
	if err := e.flush(); err != nil {
		return err
	}

	msg, err := e.readMessage()
	if err != nil {
		return err
	}
	if msg.Tag != TagAuthentication {
		return ErrUnexpectedMessage
	}
	r := cReader{b: msg.Payload}
	if r.uint32() != authSASLContinue {
		return ErrUnexpectedMessage
	}
	serverFirst := r.remaining()

	clientFinal, err := client.serverFirst(serverFirst, cfg.Password, cfg.TLSServerEndPoint)
	if err != nil {
		return err
	}

	e.w.SASLResponse(clientFinal)
	if err := e.flush(); err != nil {
		return err
	}

	msg, err = e.readMessage()
	if err != nil {
		return err
	}
	if msg.Tag != TagAuthentication {
		return ErrUnexpectedMessage
	}
	r = cReader{b: msg.Payload}
	if r.uint32() != authSASLFinal {
		return ErrUnexpectedMessage
	}
	if err := client.verifyServerFinal(r.remaining()); err != nil {
		return err
	}

	final, err := e.readMessage()
	if err != nil {
		return err
	}
	if final.Tag != TagAuthentication {
		return ErrUnexpectedMessage
	}
	r = cReader{b: final.Payload}
	if r.uint32() != authOk {
		return ErrUnexpectedMessage
	}
	return nil
}

func (e *Executor) drainUntilReady() error {
	for {
		msg, err := e.readMessage()
		if err != nil {
			return err
		}
		switch msg.Tag {
		case TagBackendKeyData:
			r := cReader{b: msg.Payload}
			e.backendPID = r.uint32()
			e.backendKey = r.uint32()
		case TagParameterStatus:
			r := cReader{b: msg.Payload}
			name := r.cstring()
			val := r.cstring()
			e.params[name] = val
		case TagReadyForQuery:
			return nil
		case TagErrorResponse:
			e.fail()
			return parseErrorResponse(msg.Payload)
		default:
			e.fail()
			return ErrUnexpectedMessage
		}
	}
}

// Prepare resolves sql to a statement id, issuing Parse+Describe+Sync on
// a cache miss (spec §4.13's prepare()).
func (e *Executor) Prepare(sql string) (uint64, error) {
	if stmt, ok := e.stmts.Get(sql); ok {
		return stmt.ID, nil
	}

	id := hashSQL(sql)
	name := statementName(id)

	e.w.Parse(name, sql, nil)
	e.w.Describe(DescribeStatement, name)
	e.w.Sync()
	if err := e.flush(); err != nil {
		return 0, err
	}

	if err := e.expectTag(TagParseComplete); err != nil {
		return 0, err
	}

	msg, err := e.readMessage()
	if err != nil {
		return 0, err
	}
	if msg.Tag != TagParameterDesc {
		e.fail()
		return 0, ErrUnexpectedMessage
	}
	r := cReader{b: msg.Payload}
	n := r.uint16()
	paramTypes := make([]Oid, n)
	for i := range paramTypes {
		paramTypes[i] = Oid(r.uint32())
	}

	msg, err = e.readMessage()
	if err != nil {
		return 0, err
	}
	var resultOids []Oid
	switch msg.Tag {
	case TagRowDescription:
		resultOids = parseRowDescriptionOids(msg.Payload)
	case TagNoData:
		// no result columns
	default:
		e.fail()
		return 0, ErrUnexpectedMessage
	}

	if err := e.expectTag(TagReadyForQuery); err != nil {
		return 0, err
	}

	stmt := &Statement{ID: id, Name: name, SQL: sql, ParamTypes: paramTypes, ResultOids: resultOids}
	if evicted := e.stmts.Insert(stmt); evicted != nil {
		e.w.Close(DescribeStatement, evicted.Name)
		e.w.Sync()
		if err := e.flush(); err == nil {
			_ = e.expectTag(TagCloseComplete)
			_ = e.expectTag(TagReadyForQuery)
		}
	}
	return id, nil
}

func parseRowDescriptionOids(payload []byte) []Oid {
	r := cReader{b: payload}
	n := r.uint16()
	oids := make([]Oid, n)
	for i := range oids {
		_ = r.cstring()      // name
		_ = r.uint32()        // table oid
		_ = r.uint16()        // column attr number
		oids[i] = Oid(r.uint32()) // type oid
		_ = r.uint16()        // type size
		_ = r.uint32()        // type modifier
		_ = r.uint16()        // format code
	}
	return oids
}

func (e *Executor) expectTag(tag Tag) error {
	msg, err := e.readMessage()
	if err != nil {
		return err
	}
	if msg.Tag == TagErrorResponse {
		dbErr := parseErrorResponse(msg.Payload)
		_ = e.drainToReadyForQuery()
		return dbErr
	}
	if msg.Tag != tag {
		e.fail()
		return ErrUnexpectedMessage
	}
	return nil
}

func (e *Executor) drainToReadyForQuery() error {
	for {
		msg, err := e.readMessage()
		if err != nil {
			return err
		}
		if msg.Tag == TagReadyForQuery {
			return nil
		}
	}
}

func (e *Executor) mustStatement(stmtID uint64) (*Statement, error) {
	for _, el := range e.stmts.entries {
		if st := el.Value.(*Statement); st.ID == stmtID {
			return st, nil
		}
	}
	return nil, ErrStatementNotFound
}

// ExecuteWithStmt binds stmtID with values and executes it, returning the
// affected row count (spec §4.13's execute_with_stmt()).
func (e *Executor) ExecuteWithStmt(stmtID uint64, values [][]byte) (int64, error) {
	stmt, err := e.mustStatement(stmtID)
	if err != nil {
		return 0, err
	}

	e.w.Bind("", stmt.Name, values)
	e.w.Execute("", 0)
	e.w.Sync()
	if err := e.flush(); err != nil {
		return 0, err
	}

	if err := e.expectTag(TagBindComplete); err != nil {
		return 0, err
	}

	var rowCount int64
	for {
		msg, err := e.readMessage()
		if err != nil {
			return 0, err
		}
		switch msg.Tag {
		case TagDataRow:
			rowCount++
		case TagCommandComplete:
			rowCount = parseCommandCompleteRows(msg.Payload)
		case TagEmptyQueryResp:
			rowCount = 0
		case TagReadyForQuery:
			return rowCount, nil
		case TagErrorResponse:
			dbErr := parseErrorResponse(msg.Payload)
			_ = e.drainToReadyForQuery()
			return 0, dbErr
		default:
			e.fail()
			return 0, ErrUnexpectedMessage
		}
	}
}

// FetchWithStmt returns the first row of stmtID's result (spec §4.13).
func (e *Executor) FetchWithStmt(stmtID uint64, values [][]byte) (*Row, error) {
	var first *Row
	_, err := e.fetchInto(stmtID, values, func(r *Row) error {
		if first == nil {
			first = r
		}
		return nil
	})
	return first, err
}

// FetchManyWithStmt calls cb for every row and returns the accumulated
// Records view (spec §4.13).
func (e *Executor) FetchManyWithStmt(stmtID uint64, values [][]byte, cb func(*Row) error) (*Records, error) {
	return e.fetchInto(stmtID, values, cb)
}

func (e *Executor) fetchInto(stmtID uint64, values [][]byte, cb func(*Row) error) (*Records, error) {
	stmt, err := e.mustStatement(stmtID)
	if err != nil {
		return nil, err
	}

	e.w.Bind("", stmt.Name, values)
	e.w.Execute("", 0)
	e.w.Sync()
	if err := e.flush(); err != nil {
		return nil, err
	}

	if err := e.expectTag(TagBindComplete); err != nil {
		return nil, err
	}

	records := &Records{}
	for {
		msg, err := e.readMessage()
		if err != nil {
			return nil, err
		}
		switch msg.Tag {
		case TagDataRow:
			row := parseDataRow(msg.Payload)
			records.Rows = append(records.Rows, row)
			if cb != nil {
				if err := cb(row); err != nil {
					_ = e.drainToReadyForQuery()
					return nil, err
				}
			}
		case TagCommandComplete, TagEmptyQueryResp:
			// row count is len(records.Rows); CommandComplete's own count
			// is redundant for a fetch (we already have every row).
		case TagReadyForQuery:
			return records, nil
		case TagErrorResponse:
			dbErr := parseErrorResponse(msg.Payload)
			_ = e.drainToReadyForQuery()
			return nil, dbErr
		default:
			e.fail()
			return nil, ErrUnexpectedMessage
		}
	}
}

func parseDataRow(payload []byte) *Row {
	r := cReader{b: payload}
	n := r.uint16()
	row := &Row{Columns: make([][]byte, n)}
	for i := range row.Columns {
		ln := r.int32()
		if ln < 0 {
			row.Columns[i] = nil
			continue
		}
		row.Columns[i] = append([]byte(nil), r.bytes(int(ln))...)
	}
	return row
}

func parseCommandCompleteRows(payload []byte) int64 {
	s := strings.TrimRight(string(payload), "\x00")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Close sends Terminate and closes the underlying connection.
func (e *Executor) Close() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closeMu.Unlock()

	e.w.Terminate()
	_ = e.flush()
	e.fail()
	return nil
}
