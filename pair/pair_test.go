package pair

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brutella/hap/crypto"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/tlv8"
)

func newTestIdentity(t *testing.T, pin string) *db.Identity {
	t.Helper()
	pub, priv, err := crypto.GenerateLongTermKeyPair()
	require.NoError(t, err)
	return &db.Identity{
		DeviceID:   "AA:BB:CC:DD:EE:FF",
		PublicKey:  []byte(pub),
		PrivateKey: []byte(priv),
		Pincode:    pin,
		SetupID:    "ABCD",
	}
}

func newTestPairings(t *testing.T) *db.Pairings {
	t.Helper()
	store, err := db.NewFileStore(t.TempDir(), "pair-test")
	require.NoError(t, err)
	p, err := db.LoadPairings(store)
	require.NoError(t, err)
	return p
}

// fullPairSetup drives a complete, correct pair-setup exchange and returns
// the resulting controller identity, exercising the coordinator and Setup
// state machine end to end (a fresh, never-before-paired controller).
func fullPairSetup(t *testing.T, co *Coordinator, pin string) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()

	setup, err := co.Begin(false)
	require.NoError(t, err)

	m2, err := setup.HandleM1(nil)
	require.NoError(t, err)

	salt, _ := tlv8.Get(m2, TagSalt)
	serverPub, _ := tlv8.Get(m2, TagPublicKey)

	clientPriv, clientPub, clientS := srpClientExchange(t, pin, salt, serverPub)
	_ = clientPriv

	clientM1 := srpClientProof(salt, clientPub, serverPub, clientS)

	m4, err := setup.HandleM3([]tlv8.Item{
		{Tag: TagPublicKey, Value: clientPub},
		{Tag: TagProof, Value: clientM1},
	})
	require.NoError(t, err)
	_, hasError := tlv8.Get(m4, TagError)
	require.False(t, hasError)

	username := "controller-1"
	ltpk, ltsk, err := crypto.GenerateLongTermKeyPair()
	require.NoError(t, err)

	encKey, err := crypto.HKDF(clientS, "Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info", 32)
	require.NoError(t, err)
	signKey, err := crypto.HKDF(clientS, "Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info", 32)
	require.NoError(t, err)

	material := append(append([]byte{}, signKey...), append(append([]byte{}, []byte(username)...), []byte(ltpk)...)...)
	sig := crypto.Sign(ltsk, material)

	subTLV := tlv8.Encode(
		tlv8.Item{Tag: TagIdentifier, Value: []byte(username)},
		tlv8.Item{Tag: TagPublicKey, Value: []byte(ltpk)},
		tlv8.Item{Tag: TagSignature, Value: sig},
	)
	encrypted, err := crypto.SealWithNonce(encKey, testNonceLabel("PS-Msg05"), nil, subTLV)
	require.NoError(t, err)

	m6, err := setup.HandleM5([]tlv8.Item{{Tag: TagEncryptedData, Value: encrypted}})
	require.NoError(t, err)
	_, hasError = tlv8.Get(m6, TagError)
	require.False(t, hasError)

	return ltpk, ltsk, username
}

func TestFullPairSetupAddsAdmin(t *testing.T) {
	identity := newTestIdentity(t, "031-45-154")
	pairings := newTestPairings(t)
	co := NewCoordinator(identity, pairings)

	fullPairSetup(t, co, "031-45-154")

	assert.Equal(t, 1, pairings.Count())
	assert.True(t, pairings.HasAdmin())
}

func TestSecondPairSetupRefusedWithoutRepair(t *testing.T) {
	identity := newTestIdentity(t, "031-45-154")
	pairings := newTestPairings(t)
	co := NewCoordinator(identity, pairings)

	fullPairSetup(t, co, "031-45-154")

	_, err := co.Begin(false)
	assert.ErrorIs(t, err, ErrAlreadyPaired)
}

func TestConcurrentPairSetupIsBusy(t *testing.T) {
	identity := newTestIdentity(t, "031-45-154")
	pairings := newTestPairings(t)
	co := NewCoordinator(identity, pairings)

	_, err := co.Begin(false)
	require.NoError(t, err)

	_, err = co.Begin(false)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestPairVerifyAfterSetupSucceeds(t *testing.T) {
	identity := newTestIdentity(t, "031-45-154")
	pairings := newTestPairings(t)
	co := NewCoordinator(identity, pairings)

	ltpk, ltsk, username := fullPairSetup(t, co, "031-45-154")

	verify := NewVerify(identity, pairings)

	ctlPub, ctlPriv, err := crypto.GenerateCurve25519KeyPair()
	require.NoError(t, err)

	m2, err := verify.HandleM1([]tlv8.Item{{Tag: TagPublicKey, Value: ctlPub[:]}})
	require.NoError(t, err)

	accPub, _ := tlv8.Get(m2, TagPublicKey)
	accEncrypted, _ := tlv8.Get(m2, TagEncryptedData)

	shared, err := crypto.ECDH(ctlPriv, accPub)
	require.NoError(t, err)
	verifyKey, err := crypto.HKDF(shared, "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", 32)
	require.NoError(t, err)

	m2Plain, err := crypto.OpenWithNonce(verifyKey, testNonceLabel("PV-Msg02"), nil, accEncrypted)
	require.NoError(t, err)
	m2Items, err := tlv8.Decode(m2Plain)
	require.NoError(t, err)
	accSig, _ := tlv8.Get(m2Items, TagSignature)

	accPubForVerify, _, err := crypto.GenerateCurve25519KeyPair()
	_ = accPubForVerify
	require.NoError(t, err)

	serverLTPK, _ := identity.KeyPair()
	sigMaterial := append(append([]byte{}, accPub...), append([]byte(identity.DeviceID), ctlPub[:]...)...)
	assert.True(t, crypto.Verify(serverLTPK, sigMaterial, accSig))

	clientMaterial := append(append([]byte{}, ctlPub[:]...), append(append([]byte{}, []byte(username)...), accPub...)...)
	clientSig := crypto.Sign(ltsk, clientMaterial)
	clientSub := tlv8.Encode(
		tlv8.Item{Tag: TagIdentifier, Value: []byte(username)},
		tlv8.Item{Tag: TagSignature, Value: clientSig},
	)
	clientEncrypted, err := crypto.SealWithNonce(verifyKey, testNonceLabel("PV-Msg03"), nil, clientSub)
	require.NoError(t, err)

	m4, keys, err := verify.HandleM3([]tlv8.Item{{Tag: TagEncryptedData, Value: clientEncrypted}})
	require.NoError(t, err)
	_, hasError := tlv8.Get(m4, TagError)
	require.False(t, hasError)
	require.NotNil(t, keys)
	assert.Len(t, keys.ReadKey, 32)
	assert.Len(t, keys.WriteKey, 32)
	assert.NotEqual(t, ltpk, nil)
}

func testNonceLabel(label string) []byte {
	nonce := make([]byte, 12)
	copy(nonce[12-len(label):], label)
	return nonce
}
