package http2

// ReadLoop is the frame-reader task (spec §4.6): one goroutine per
// connection, owning the read half of the socket, dispatching each
// incoming frame by type and updating the shared Http2Data under the
// connection's locks. It runs until the socket errors, a protocol
// violation forces a GOAWAY, or the peer sends its own GOAWAY.
func (c *Conn) ReadLoop() {
	defer func() { c.fail(c.LastErr()) }()

	for {
		fr, err := ReadFrameFrom(c.br, c.params.MaxFrameLen)
		if err != nil {
			c.recordFatal(err)
			return
		}

		if err := c.dispatch(fr); err != nil {
			ReleaseFrameHeader(fr)
			c.recordFatal(err)
			if herr, ok := err.(*Error); ok {
				_ = c.SendGoAway(herr.Code, []byte(herr.Msg))
			} else {
				_ = c.SendGoAway(InternalError, nil)
			}
			return
		}
		ReleaseFrameHeader(fr)

		if c.IsClosed() {
			return
		}
	}
}

func (c *Conn) recordFatal(err error) {
	c.errMu.Lock()
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.errMu.Unlock()
}

func (c *Conn) dispatch(fr *FrameHeader) error {
	switch fr.Type() {
	case FrameData:
		return c.handleData(fr)
	case FrameHeaders:
		return c.handleHeaders(fr)
	case FrameContinuation:
		// A CONTINUATION arriving outside an in-progress HEADERS block
		// (handleHeaders consumes its own CONTINUATION frames inline) is
		// a protocol violation.
		return NewError(ProtocolError, "unexpected CONTINUATION frame")
	case FrameSettings:
		return c.handleSettings(fr)
	case FramePing:
		return c.handlePing(fr)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(fr)
	case FrameResetStream:
		return c.handleRstStream(fr)
	case FrameGoAway:
		return c.handleGoAway(fr)
	default:
		// RFC 7540 §4.1: unknown frame types (e.g. PRIORITY, PUSH_PROMISE)
		// are ignored rather than rejected.
		return nil
	}
}

func (c *Conn) handleData(fr *FrameHeader) error {
	d, ok := fr.Body().(*Data)
	if !ok {
		return NewError(ProtocolError, "malformed DATA frame")
	}
	s := c.streams.Get(fr.Stream())
	if s == nil {
		return NewError(StreamClosedError, "DATA on unknown stream")
	}

	payload := d.Payload()
	if len(payload) > 0 {
		if err := s.Windows().ConsumeBoth(int32(len(payload))); err != nil {
			return err
		}
	}
	if err := s.onData(payload, d.EndStream()); err != nil {
		return err
	}

	c.notifyComplete(s)

	if s.Windows().StreamRecvLow(int32(c.params.InitialWindowSize)) {
		if n := s.Windows().ReplenishStream(int32(c.params.InitialWindowSize)); n > 0 {
			_ = c.sendWindowUpdate(s.ID(), n)
		}
	}
	if c.connWindow.RecvLow(int32(c.params.InitialWindowSize)) {
		if n := c.connWindow.ReplenishRecv(int32(c.params.InitialWindowSize)); n > 0 {
			_ = c.sendWindowUpdate(0, n)
		}
	}
	return nil
}

// handleHeaders reads the initiating HEADERS frame and, if END_HEADERS
// was not set, keeps reading CONTINUATION frames off the wire (bounded
// by maxContinuationFrames) until the block is complete, per spec §4.7.
func (c *Conn) handleHeaders(fr *FrameHeader) error {
	h, ok := fr.Body().(*Headers)
	if !ok {
		return NewError(ProtocolError, "malformed HEADERS frame")
	}

	block := append([]byte(nil), h.HeaderBlock()...)
	endHeaders := h.EndHeaders()
	endStream := h.EndStream()
	streamID := fr.Stream()

	seen := 0
	for !endHeaders {
		seen++
		if seen > maxContinuationFrames {
			return NewError(EnhanceYourCalmError, "too many CONTINUATION frames")
		}
		cfr, err := ReadFrameFrom(c.br, c.params.MaxFrameLen)
		if err != nil {
			return err
		}
		ct, ok := cfr.Body().(*Continuation)
		ReleaseFrameHeader(cfr)
		if !ok || cfr.Stream() != streamID {
			return NewError(ProtocolError, "CONTINUATION must follow HEADERS on same stream")
		}
		block = append(block, ct.HeaderBlock()...)
		endHeaders = ct.EndHeaders()
	}

	fields, overSize, err := c.dec.DecodeHeaderBlock(block, int(c.params.MaxHeadersLen))
	if err != nil {
		return NewError(CompressionError, err.Error())
	}
	if overSize {
		return NewError(FrameSizeError, "expanded headers exceed configured budget")
	}
	if err := ValidateHeaderBlock(fields); err != nil {
		return err
	}

	s := c.streams.Get(streamID)
	if s == nil {
		if c.isClient {
			return NewError(ProtocolError, "HEADERS on unknown client stream")
		}
		var ok bool
		s, ok = c.streams.OpenServer(streamID, c.connWindow, int32(c.params.InitialWindowSize), c.params.MaxBodyLen)
		if !ok {
			return c.sendRstStream(streamID, RefusedStreamError)
		}
	}

	if err := s.onHeaders(fields, !c.isClient, endStream); err != nil {
		return err
	}
	c.notifyComplete(s)
	return nil
}

func (c *Conn) handleSettings(fr *FrameHeader) error {
	st, ok := fr.Body().(*Settings)
	if !ok {
		return NewError(ProtocolError, "malformed SETTINGS frame")
	}
	if st.IsAck() {
		return nil
	}

	if st.hasHeaderTableSize {
		c.enc.SetMaxTableSize(st.HeaderTableSize)
	}
	if st.hasInitialWindowSize {
		c.peerParams.InitialWindowSize = st.InitialWindowSize
	}
	if st.hasMaxFrameSize {
		c.peerParams.MaxFrameLen = st.MaxFrameSize
		c.peerParams.Clamp()
	}
	if st.hasMaxConcurrentStreams {
		c.peerParams.MaxConcurrentStreams = st.MaxConcurrentStreams
	}
	if st.hasMaxHeaderListSize {
		c.peerParams.MaxHeadersLen = st.MaxHeaderListSize
	}
	if st.hasEnableConnectProto {
		c.peerParams.EnableConnectProto = st.EnableConnectProto
	}

	return c.writeFrame(AckSettings(), 0)
}

func (c *Conn) handlePing(fr *FrameHeader) error {
	p, ok := fr.Body().(*Ping)
	if !ok {
		return NewError(ProtocolError, "malformed PING frame")
	}
	if p.Ack() {
		return nil
	}
	reply := &Ping{}
	reply.SetAck(true)
	reply.SetData(p.Data())
	return c.writeFrame(reply, 0)
}

func (c *Conn) handleWindowUpdate(fr *FrameHeader) error {
	wu, ok := fr.Body().(*WindowUpdate)
	if !ok {
		return NewError(ProtocolError, "malformed WINDOW_UPDATE frame")
	}
	if fr.Stream() == 0 {
		return c.connWindow.depositSend(int32(wu.Increment()))
	}
	s := c.streams.Get(fr.Stream())
	if s == nil {
		// A WINDOW_UPDATE can race a stream's own closure; RFC 7540
		// allows ignoring it once the stream is gone.
		return nil
	}
	return s.Windows().DepositStream(int32(wu.Increment()))
}

func (c *Conn) handleRstStream(fr *FrameHeader) error {
	rs, ok := fr.Body().(*RstStream)
	if !ok {
		return NewError(ProtocolError, "malformed RST_STREAM frame")
	}
	s := c.streams.Del(fr.Stream())
	if s != nil {
		s.mu.Lock()
		s.setState(StreamClosed)
		s.mu.Unlock()
	}
	_ = rs.Code()
	return nil
}

func (c *Conn) handleGoAway(fr *FrameHeader) error {
	ga, ok := fr.Body().(*GoAway)
	if !ok {
		return NewError(ProtocolError, "malformed GOAWAY frame")
	}
	if c.onGoAway != nil {
		c.onGoAway(ga.Code(), ga.LastStreamID(), ga.DebugData())
	}
	c.fail(NewError(ga.Code(), "peer sent GOAWAY"))
	return nil
}
