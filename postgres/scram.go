package postgres

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ChannelBindingPolicy controls whether this client demands, prefers, or
// refuses channel-bound SCRAM (spec §4.14).
type ChannelBindingPolicy byte

const (
	ChannelBindingDisable ChannelBindingPolicy = iota
	ChannelBindingPrefer
	ChannelBindingRequire
)

const (
	mechSCRAMSHA256     = "SCRAM-SHA-256"
	mechSCRAMSHA256Plus = "SCRAM-SHA-256-PLUS"
)

// selectMechanism picks a SASL mechanism from the server-advertised list
// per spec §4.14's table.
func selectMechanism(offered []string, policy ChannelBindingPolicy, hasTSEP bool) (mechanism string, gs2Header []byte, err error) {
	var hasPlain, hasPlus bool
	for _, m := range offered {
		switch m {
		case mechSCRAMSHA256:
			hasPlain = true
		case mechSCRAMSHA256Plus:
			hasPlus = true
		}
	}

	switch {
	case !hasPlain && !hasPlus:
		return "", nil, ErrAuthUnsupported
	case hasPlus && hasTSEP && (policy == ChannelBindingPrefer || policy == ChannelBindingRequire):
		return mechSCRAMSHA256Plus, []byte("p=tls-server-end-point,,"), nil
	case hasPlain && !hasPlus && policy == ChannelBindingRequire:
		return "", nil, ErrRequiredChannel
	case !hasPlain && hasPlus && policy == ChannelBindingDisable:
		return "", nil, ErrRequiredChannel
	case hasPlain && (policy == ChannelBindingDisable || policy == ChannelBindingPrefer):
		return mechSCRAMSHA256, []byte("n,,"), nil
	default:
		return "", nil, ErrAuthUnsupported
	}
}

// randomNonce builds a 24-byte client nonce from RFC 5802's
// printable-ASCII-minus-comma set: 0x21..=0x2B or 0x2D..=0x7E (spec §4.14).
func randomNonce(rng func([]byte)) []byte {
	const n = 24
	raw := make([]byte, n)
	rng(raw)
	out := make([]byte, n)
	for i, b := range raw {
		v := int(b) % (0x2B - 0x21 + 1 + 0x7E - 0x2D + 1)
		if v <= 0x2B-0x21 {
			out[i] = byte(0x21 + v)
		} else {
			out[i] = byte(0x2D + (v - (0x2B - 0x21 + 1)))
		}
	}
	return out
}

// scramClient carries the state needed across the two SASL round trips.
type scramClient struct {
	gs2Header      []byte
	clientNonce    []byte
	clientFirstBare []byte
	authMessage     []byte
	saltedPassword  []byte
}

// newSCRAMClient records the gs2 header and client nonce and builds the
// bare client-first-message ("n=,r=<nonce>") for the SASL exchange.
func newSCRAMClient(gs2Header []byte, clientNonce []byte) *scramClient {
	bare := append([]byte("n=,r="), clientNonce...)
	return &scramClient{gs2Header: gs2Header, clientNonce: clientNonce, clientFirstBare: bare}
}

func (c *scramClient) clientFirstMessage() []byte {
	return append(append([]byte(nil), c.gs2Header...), c.clientFirstBare...)
}

// serverFirst parses the server-first-message (r=,s=,i=) and computes the
// client-final-message, channel-binding data included.
func (c *scramClient) serverFirst(serverFirst []byte, password string, channelBindingData []byte) (clientFinal []byte, err error) {
	fields := parseSCRAMFields(serverFirst)
	serverNonce := fields["r"]
	saltB64 := fields["s"]
	iterStr := fields["i"]

	iterations, err := strconv.Atoi(iterStr)
	if err != nil {
		return nil, err
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, err
	}

	c.saltedPassword = pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)

	cbInput := append(append([]byte(nil), c.gs2Header...), channelBindingData...)
	clientFinalWithoutProof := append([]byte("c="), []byte(base64.StdEncoding.EncodeToString(cbInput))...)
	clientFinalWithoutProof = append(clientFinalWithoutProof, []byte(",r=")...)
	clientFinalWithoutProof = append(clientFinalWithoutProof, serverNonce...)

	c.authMessage = joinComma(c.clientFirstBare, serverFirst, clientFinalWithoutProof)

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)
	clientSignature := hmacSHA256(storedKey, c.authMessage)

	clientProof := make([]byte, len(clientKey))
	for i := range clientKey {
		clientProof[i] = clientKey[i] ^ clientSignature[i]
	}

	out := append(append([]byte(nil), clientFinalWithoutProof...), []byte(",p=")...)
	out = append(out, []byte(base64.StdEncoding.EncodeToString(clientProof))...)
	return out, nil
}

// verifyServerFinal checks the server's `v=<base64>` verifier against the
// expected HMAC, in constant time.
func (c *scramClient) verifyServerFinal(serverFinal []byte) error {
	fields := parseSCRAMFields(serverFinal)
	v, err := base64.StdEncoding.DecodeString(fields["v"])
	if err != nil {
		return err
	}
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expected := hmacSHA256(serverKey, c.authMessage)
	if subtle.ConstantTimeCompare(v, expected) != 1 {
		return ErrSCRAMVerification
	}
	return nil
}

func parseSCRAMFields(msg []byte) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(string(msg), ",") {
		k, v, ok := strings.Cut(part, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

func joinComma(parts ...[]byte) []byte {
	var out []byte
	for i, p := range parts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, p...)
	}
	return out
}

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	s := sha256.Sum256(data)
	return s[:]
}
