package pair

import (
	"fmt"

	"github.com/brutella/hap/crypto"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/log"
	"github.com/brutella/hap/tlv8"
)

// SessionKeys holds the two independent control-channel keys derived after
// a successful pair-verify, handed to the session transport for its
// independent read/write cipher upgrades.
type SessionKeys struct {
	ReadKey  []byte // C->A, decrypted by the server
	WriteKey []byte // A->C, encrypted by the server
	Username string // the verified controller, for event-originator tracking
}

// Verify runs the M1-M4 pair-verify exchange for one connection.
type Verify struct {
	identity *db.Identity
	pairings *db.Pairings

	accPub, accPriv [32]byte
	ctlPub          []byte
	shared          []byte
}

// NewVerify creates a per-connection pair-verify handler.
func NewVerify(identity *db.Identity, pairings *db.Pairings) *Verify {
	return &Verify{identity: identity, pairings: pairings}
}

// HandleM1 computes the session ECDH and returns the M2 response.
func (v *Verify) HandleM1(items []tlv8.Item) ([]tlv8.Item, error) {
	ctlPub, ok := tlv8.Get(items, TagPublicKey)
	if !ok {
		return v.fail(StateM2, fmt.Errorf("pair-verify: M1 missing public key"))
	}
	v.ctlPub = ctlPub

	accPub, accPriv, err := crypto.GenerateCurve25519KeyPair()
	if err != nil {
		return v.fail(StateM2, err)
	}
	v.accPub, v.accPriv = accPub, accPriv

	shared, err := crypto.ECDH(accPriv, ctlPub)
	if err != nil {
		return v.fail(StateM2, err)
	}
	v.shared = shared

	key, err := crypto.HKDF(shared, "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", 32)
	if err != nil {
		return v.fail(StateM2, err)
	}

	material := append(append([]byte{}, accPub[:]...), append([]byte(v.identity.DeviceID), ctlPub...)...)
	_, priv := v.identity.KeyPair()
	sig := crypto.Sign(priv, material)

	sub := tlv8.Encode(
		tlv8.Item{Tag: TagIdentifier, Value: []byte(v.identity.DeviceID)},
		tlv8.Item{Tag: TagSignature, Value: sig},
	)
	encrypted, err := crypto.SealWithNonce(key, nonceLabel("PV-Msg02"), nil, sub)
	if err != nil {
		return v.fail(StateM2, err)
	}

	log.Pairing.Debug().Msg("pair-verify M1 -> M2")
	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(StateM2)}},
		{Tag: TagPublicKey, Value: accPub[:]},
		{Tag: TagEncryptedData, Value: encrypted},
	}, nil
}

// HandleM3 verifies the controller's identity and signature, and returns
// the resulting session keys alongside the M4 response. Callers should
// upgrade the Conn's read side (C->A) immediately after this returns,
// before writing the M4 response, and upgrade the write side (A->C) only
// after the M4 bytes have been flushed plaintext — the two sides of the
// transport upgrade independently.
func (v *Verify) HandleM3(items []tlv8.Item) ([]tlv8.Item, *SessionKeys, error) {
	encrypted, ok := tlv8.Get(items, TagEncryptedData)
	if !ok {
		resp, err := v.fail(StateM4, fmt.Errorf("pair-verify: M3 missing encrypted data"))
		return resp, nil, err
	}

	key, err := crypto.HKDF(v.shared, "Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", 32)
	if err != nil {
		resp, ferr := v.fail(StateM4, err)
		return resp, nil, ferr
	}

	plaintext, err := crypto.OpenWithNonce(key, nonceLabel("PV-Msg03"), nil, encrypted)
	if err != nil {
		resp, ferr := v.fail(StateM4, err)
		return resp, nil, ferr
	}

	subItems, err := tlv8.Decode(plaintext)
	if err != nil {
		resp, ferr := v.fail(StateM4, err)
		return resp, nil, ferr
	}

	username, ok := tlv8.Get(subItems, TagIdentifier)
	if !ok {
		resp, ferr := v.fail(StateM4, fmt.Errorf("pair-verify: M3 missing identifier"))
		return resp, nil, ferr
	}
	signature, ok := tlv8.Get(subItems, TagSignature)
	if !ok {
		resp, ferr := v.fail(StateM4, fmt.Errorf("pair-verify: M3 missing signature"))
		return resp, nil, ferr
	}

	controller, found := v.pairings.Get(string(username))
	if !found {
		resp, ferr := v.fail(StateM4, fmt.Errorf("pair-verify: unknown controller %q", username))
		return resp, nil, ferr
	}

	material := append(append([]byte{}, v.ctlPub...), append(append([]byte{}, username...), v.accPub[:]...)...)
	if !crypto.Verify(controller.LTPK(), material, signature) {
		resp, ferr := v.fail(StateM4, fmt.Errorf("pair-verify: signature verification failed for %q", username))
		return resp, nil, ferr
	}

	readKey, err := crypto.HKDF(v.shared, "Control-Salt", "Control-Read-Encryption-Key", 32)
	if err != nil {
		resp, ferr := v.fail(StateM4, err)
		return resp, nil, ferr
	}
	writeKey, err := crypto.HKDF(v.shared, "Control-Salt", "Control-Write-Encryption-Key", 32)
	if err != nil {
		resp, ferr := v.fail(StateM4, err)
		return resp, nil, ferr
	}

	log.Pairing.Info().Str("username", string(username)).Msg("pair-verify succeeded")

	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(StateM4)}},
	}, &SessionKeys{ReadKey: readKey, WriteKey: writeKey, Username: string(username)}, nil
}

// fail builds the TLV8 error reply for state, the M-number of the response
// that would have followed success (M2 for an M1 failure, M4 for an M3
// failure).
func (v *Verify) fail(state State, cause error) ([]tlv8.Item, error) {
	log.Pairing.Warn().Err(cause).Msg("pair-verify failed")
	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(state)}},
		{Tag: TagError, Value: []byte{byte(ErrorAuthentication)}},
	}, nil
}
