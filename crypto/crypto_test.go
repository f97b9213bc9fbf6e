package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSRPHandshake(t *testing.T) {
	const pin = "031-45-154"

	server, err := NewSRPServer(pin)
	require.NoError(t, err)

	// Emulate a well-behaved client using the same math the server does,
	// since a from-scratch client implementation is out of scope here; what
	// we are validating is that the server accepts a proof computed the
	// textbook way and rejects a forged one.
	x := srpX(server.salt, "Pair-Setup", pin)
	a := newTestPrivate(t)
	A := new4096Pow(srpG, a)

	u := srpU(padTo(A, srpByteLen), server.B.Bytes())
	// client S = (B - k*g^x) ^ (a + u*x) % N
	base := new4096Sub(server.B, new4096MulMod(srpK, new4096Pow(srpG, x)))
	exp := new4096Add(a, new4096Mul(u, x))
	clientS := new4096Pow(base, exp)

	clientM1 := srpM1(server.salt, A, server.B, clientS)

	serverM2, err := server.VerifyClientProof(padTo(A, srpByteLen), clientM1)
	require.NoError(t, err)

	expectedM2 := srpM2(A, clientM1, clientS)
	assert.Equal(t, expectedM2, serverM2)
}

func TestSRPRejectsBadProof(t *testing.T) {
	server, err := NewSRPServer("031-45-154")
	require.NoError(t, err)

	bogusA := padTo(srpG, srpByteLen)
	_, err = server.VerifyClientProof(bogusA, make([]byte, 64))
	assert.ErrorIs(t, err, ErrSRPAuthentication)
}

func TestECDHAndHKDFAgree(t *testing.T) {
	aPub, aPriv, err := GenerateCurve25519KeyPair()
	require.NoError(t, err)
	bPub, bPriv, err := GenerateCurve25519KeyPair()
	require.NoError(t, err)

	sharedA, err := ECDH(aPriv, bPub[:])
	require.NoError(t, err)
	sharedB, err := ECDH(bPriv, aPub[:])
	require.NoError(t, err)
	require.Equal(t, sharedA, sharedB)

	keyA, err := HKDF(sharedA, "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", 32)
	require.NoError(t, err)
	keyB, err := HKDF(sharedB, "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", 32)
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB)
}

func TestCipherRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	writer, err := NewCipher(key)
	require.NoError(t, err)
	reader, err := NewCipher(key)
	require.NoError(t, err)

	aad := []byte{0x05, 0x00}
	plaintext := []byte("hello homekit")

	ciphertext := writer.Seal(aad, plaintext)
	decrypted, err := reader.Open(aad, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCipherNonceMismatchFails(t *testing.T) {
	key := make([]byte, 32)
	writer, _ := NewCipher(key)
	reader, _ := NewCipher(key)

	aad := []byte{0x05, 0x00}
	_ = writer.Seal(aad, []byte("frame one"))
	ciphertext := writer.Seal(aad, []byte("frame two"))

	// reader hasn't consumed frame one, so its counter is out of step.
	_, err := reader.Open(aad, ciphertext)
	assert.Error(t, err)
}

func TestEd25519SignVerify(t *testing.T) {
	pub, priv, err := GenerateLongTermKeyPair()
	require.NoError(t, err)

	msg := []byte("accPub||deviceID||ctlPub")
	sig := Sign(priv, msg)
	assert.True(t, Verify(pub, msg, sig))
	assert.False(t, Verify(pub, []byte("tampered"), sig))
}
