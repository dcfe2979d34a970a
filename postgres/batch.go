package postgres

// BatchItem is one statement + parameter set queued into a pipelined
// Batch (spec §4.13/§5: "sends all requests before any Sync").
type BatchItem struct {
	StmtID uint64
	Values [][]byte
}

// Batch pipelines N × (Bind+Execute) followed by a single Sync, then
// reassembles the FIFO-ordered (BindComplete, rows..., CommandComplete)
// groups into one Records per item, in call order (spec §4.13/§5's
// pipelined Batch API).
func (e *Executor) Batch(items []BatchItem) ([]*Records, error) {
	stmts := make([]*Statement, len(items))
	for i, item := range items {
		stmt, err := e.mustStatement(item.StmtID)
		if err != nil {
			return nil, err
		}
		stmts[i] = stmt
	}

	for i, item := range items {
		e.w.Bind("", stmts[i].Name, item.Values)
		e.w.Execute("", 0)
	}
	e.w.Sync()
	if err := e.flush(); err != nil {
		return nil, err
	}

	out := make([]*Records, len(items))
	for i := range items {
		if err := e.expectTag(TagBindComplete); err != nil {
			return nil, err
		}
		records := &Records{}
		for out[i] == nil {
			msg, err := e.readMessage()
			if err != nil {
				return nil, err
			}
			switch msg.Tag {
			case TagDataRow:
				records.Rows = append(records.Rows, parseDataRow(msg.Payload))
			case TagCommandComplete, TagEmptyQueryResp:
				out[i] = records
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
	if err := e.expectTag(TagReadyForQuery); err != nil {
		return nil, err
	}
	return out, nil
}
