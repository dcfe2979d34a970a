package http2

// staticTable is the RFC 7541 Appendix A static table, 1-indexed in the
// spec but stored 0-indexed here (lookup adds 1).
var staticTable = []HeaderField{
	{key: []byte(":authority")},
	{key: []byte(":method"), value: []byte("GET")},
	{key: []byte(":method"), value: []byte("POST")},
	{key: []byte(":path"), value: []byte("/")},
	{key: []byte(":path"), value: []byte("/index.html")},
	{key: []byte(":scheme"), value: []byte("http")},
	{key: []byte(":scheme"), value: []byte("https")},
	{key: []byte(":status"), value: []byte("200")},
	{key: []byte(":status"), value: []byte("204")},
	{key: []byte(":status"), value: []byte("206")},
	{key: []byte(":status"), value: []byte("304")},
	{key: []byte(":status"), value: []byte("400")},
	{key: []byte(":status"), value: []byte("404")},
	{key: []byte(":status"), value: []byte("500")},
	{key: []byte("accept-charset")},
	{key: []byte("accept-encoding"), value: []byte("gzip, deflate")},
	{key: []byte("accept-language")},
	{key: []byte("accept-ranges")},
	{key: []byte("accept")},
	{key: []byte("access-control-allow-origin")},
	{key: []byte("age")},
	{key: []byte("allow")},
	{key: []byte("authorization")},
	{key: []byte("cache-control")},
	{key: []byte("content-disposition")},
	{key: []byte("content-encoding")},
	{key: []byte("content-language")},
	{key: []byte("content-length")},
	{key: []byte("content-location")},
	{key: []byte("content-range")},
	{key: []byte("content-type")},
	{key: []byte("cookie")},
	{key: []byte("date")},
	{key: []byte("etag")},
	{key: []byte("expect")},
	{key: []byte("expires")},
	{key: []byte("from")},
	{key: []byte("host")},
	{key: []byte("if-match")},
	{key: []byte("if-modified-since")},
	{key: []byte("if-none-match")},
	{key: []byte("if-range")},
	{key: []byte("if-unmodified-since")},
	{key: []byte("last-modified")},
	{key: []byte("link")},
	{key: []byte("location")},
	{key: []byte("max-forwards")},
	{key: []byte("proxy-authenticate")},
	{key: []byte("proxy-authorization")},
	{key: []byte("range")},
	{key: []byte("referer")},
	{key: []byte("refresh")},
	{key: []byte("retry-after")},
	{key: []byte("server")},
	{key: []byte("set-cookie")},
	{key: []byte("strict-transport-security")},
	{key: []byte("transfer-encoding")},
	{key: []byte("user-agent")},
	{key: []byte("vary")},
	{key: []byte("via")},
	{key: []byte("www-authenticate")},
}

// forbiddenConnSpecific are header names RFC 7540 §8.1.2.2 forbids in an
// HTTP/2 header block (connection-specific fields from HTTP/1.1).
var forbiddenConnSpecific = map[string]bool{
	"connection":        true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
	"upgrade":           true,
}

// ValidateFieldName reports whether a regular (non-pseudo) header field
// may appear in an HTTP/2 header block: not one of the forbidden
// connection-specific fields, and "te" only with the value "trailers".
func ValidateFieldName(name, value []byte) bool {
	n := string(name)
	if forbiddenConnSpecific[n] {
		return false
	}
	if n == "te" {
		return string(value) == "trailers"
	}
	return true
}

// knownPseudoHeaders are the pseudo-header names this module ever emits
// or expects: the request set, :status, and :protocol (RFC 8441's
// Extended CONNECT, spec §4.11).
var knownPseudoHeaders = map[string]bool{
	":method":    true,
	":path":      true,
	":scheme":    true,
	":authority": true,
	":status":    true,
	":protocol":  true,
}

// ValidateHeaderBlock enforces RFC 7540 §8.1.2.1/§8.1.2.2 on a fully
// decoded header block (spec §4.4): pseudo-headers must precede regular
// headers, must be a recognized name, must not repeat, and every regular
// field must pass ValidateFieldName/ValidateRegularField. Any violation
// is a connection-level malformed-request error.
func ValidateHeaderBlock(fields []HeaderField) error {
	seenPseudo := make(map[string]bool, 4)
	sawRegular := false
	for i := range fields {
		hf := &fields[i]
		if hf.IsPseudo() {
			if sawRegular {
				return NewError(ProtocolError, "pseudo-header field after regular header field")
			}
			name := hf.Key()
			if !knownPseudoHeaders[name] {
				return NewError(ProtocolError, "unknown pseudo-header field "+name)
			}
			if seenPseudo[name] {
				return NewError(ProtocolError, "duplicate pseudo-header field "+name)
			}
			seenPseudo[name] = true
			continue
		}
		sawRegular = true
		if !ValidateFieldName(hf.KeyBytes(), hf.ValueBytes()) {
			return NewError(ProtocolError, "forbidden connection-specific header field "+hf.Key())
		}
		if !ValidateRegularField(hf.KeyBytes(), hf.ValueBytes()) {
			return NewError(ProtocolError, "malformed header field "+hf.Key())
		}
	}
	return nil
}
