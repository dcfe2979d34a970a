package postgres

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMechanismPrefersPlusWhenAvailable(t *testing.T) {
	mech, gs2, err := selectMechanism([]string{mechSCRAMSHA256, mechSCRAMSHA256Plus}, ChannelBindingPrefer, true)
	require.NoError(t, err)
	assert.Equal(t, mechSCRAMSHA256Plus, mech)
	assert.Equal(t, "p=tls-server-end-point,,", string(gs2))
}

func TestSelectMechanismFallsBackToPlain(t *testing.T) {
	mech, gs2, err := selectMechanism([]string{mechSCRAMSHA256}, ChannelBindingPrefer, false)
	require.NoError(t, err)
	assert.Equal(t, mechSCRAMSHA256, mech)
	assert.Equal(t, "n,,", string(gs2))
}

func TestSelectMechanismRequireWithoutPlusFails(t *testing.T) {
	_, _, err := selectMechanism([]string{mechSCRAMSHA256}, ChannelBindingRequire, false)
	assert.ErrorIs(t, err, ErrRequiredChannel)
}

func TestSelectMechanismDisableWithOnlyPlusFails(t *testing.T) {
	_, _, err := selectMechanism([]string{mechSCRAMSHA256Plus}, ChannelBindingDisable, true)
	assert.ErrorIs(t, err, ErrRequiredChannel)
}

func TestSelectMechanismNoneOfferedFails(t *testing.T) {
	_, _, err := selectMechanism([]string{"UNKNOWN"}, ChannelBindingDisable, false)
	assert.ErrorIs(t, err, ErrAuthUnsupported)
}

// TestSCRAMClientFinalMatchesRFC7677Fixture exercises the client-final
// message derivation against RFC 7677's worked example (password
// "pencil", server nonce/salt/iterations fixed by the RFC). This client
// omits the username from n=, per libpq's convention that it's redundant
// once the startup message has already named the role, so the proof and
// verifier checked here are independently computed (PBKDF2-HMAC-SHA256,
// cross-checked outside this codebase) for that exact bare message rather
// than copied from RFC 7677's own (different) n=user fixture.
func TestSCRAMClientFinalMatchesRFC7677Fixture(t *testing.T) {
	const clientNonce = "rOprNGfwEbeRWgbNEkqO"
	client := newSCRAMClient([]byte("n,,"), []byte(clientNonce))

	serverFirst := []byte("r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096")

	clientFinal, err := client.serverFirst(serverFirst, "pencil", nil)
	require.NoError(t, err)

	fields := parseSCRAMFields(clientFinal)
	assert.Equal(t, "biws", fields["c"])
	assert.Equal(t, "rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0", fields["r"])
	assert.Equal(t, "qvT2SWdEH5Q06albL+hjSYuUhCG7VndFyzIb7CK4n9k=", fields["p"])

	serverFinal := []byte("v=3HO6Qt1M4MKJrmlKaoOqLAI0/0TV0HZe7J9H3MBtSOg=")
	assert.NoError(t, client.verifyServerFinal(serverFinal))
}

func TestSCRAMClientVerifyServerFinalRejectsBadVerifier(t *testing.T) {
	client := newSCRAMClient([]byte("n,,"), []byte("abc"))
	serverFirst := []byte("r=abcXYZ,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096")
	_, err := client.serverFirst(serverFirst, "pencil", nil)
	require.NoError(t, err)

	err = client.verifyServerFinal([]byte("v=" + base64.StdEncoding.EncodeToString([]byte("not-the-verifier"))))
	assert.ErrorIs(t, err, ErrSCRAMVerification)
}

func TestRandomNonceUsesRFC5802Alphabet(t *testing.T) {
	nonce := randomNonce(func(b []byte) {
		for i := range b {
			b[i] = byte(i)
		}
	})
	for _, c := range nonce {
		ok := (c >= 0x21 && c <= 0x2B) || (c >= 0x2D && c <= 0x7E)
		assert.True(t, ok, "byte %x outside RFC 5802 nonce alphabet", c)
	}
}
