package pair

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/brutella/hap/crypto"
	"github.com/brutella/hap/db"
	"github.com/brutella/hap/log"
	"github.com/brutella/hap/tlv8"
)

// authDelay is applied before replying to a failed SRP proof, to resist
// rapid guessing.
var authDelay = 1 * time.Second

// maxFailedAttempts is the hard throttle: once reached, pair-setup refuses
// further attempts until the server state is manually reset.
const maxFailedAttempts = 100

// Coordinator enforces the two server-wide pair-setup rules: only one
// pair-setup may be in progress at a time, and the server refuses new
// attempts after maxFailedAttempts consecutive failed attempts (a failure
// at any step counts; a completed pair-setup resets the count).
type Coordinator struct {
	identity *db.Identity
	pairings *db.Pairings

	mutex         sync.Mutex
	inProgress    bool
	failedAttempts int
}

// NewCoordinator creates the server-wide pair-setup gatekeeper.
func NewCoordinator(identity *db.Identity, pairings *db.Pairings) *Coordinator {
	return &Coordinator{identity: identity, pairings: pairings}
}

// ErrBusy is returned by Begin when another pair-setup is already underway.
var ErrBusy = fmt.Errorf("pair: setup already in progress")

// ErrThrottled is returned once the failed-attempt ceiling is hit.
var ErrThrottled = fmt.Errorf("pair: too many failed attempts, refusing further pair-setup")

// ErrAlreadyPaired is returned by Begin when an admin is already paired and
// re-pairing was not explicitly requested.
var ErrAlreadyPaired = fmt.Errorf("pair: already paired")

// Begin starts a new Setup for one connection, enforcing the server-wide
// single-flight and throttle rules. allowRepair lets an embedder explicitly
// permit re-pairing while an admin already exists.
func (co *Coordinator) Begin(allowRepair bool) (*Setup, error) {
	co.mutex.Lock()
	defer co.mutex.Unlock()

	if co.failedAttempts >= maxFailedAttempts {
		return nil, ErrThrottled
	}
	if co.inProgress {
		return nil, ErrBusy
	}
	if co.pairings.HasAdmin() && !allowRepair {
		return nil, ErrAlreadyPaired
	}

	co.inProgress = true
	return &Setup{co: co, identity: co.identity, pairings: co.pairings}, nil
}

// End releases the single-flight slot, recording whether the attempt
// succeeded for throttle bookkeeping.
func (co *Coordinator) end(success bool) {
	co.mutex.Lock()
	defer co.mutex.Unlock()
	co.inProgress = false
	if success {
		co.failedAttempts = 0
	} else {
		co.failedAttempts++
	}
}

// ResetThrottle clears the failed-attempt counter (the "manually
// reset" escape hatch).
func (co *Coordinator) ResetThrottle() {
	co.mutex.Lock()
	defer co.mutex.Unlock()
	co.failedAttempts = 0
}

// Setup runs the M1-M6 pair-setup exchange for a single connection.
type Setup struct {
	co       *Coordinator
	identity *db.Identity
	pairings *db.Pairings

	srp *crypto.SRPServer
}

// HandleM1 processes the initial request and returns the M2 response.
func (s *Setup) HandleM1(items []tlv8.Item) ([]tlv8.Item, error) {
	srp, err := crypto.NewSRPServer(s.identity.Pincode)
	if err != nil {
		s.co.end(false)
		return nil, fmt.Errorf("pair: create srp server: %w", err)
	}
	s.srp = srp

	log.Pairing.Debug().Msg("pair-setup M1 -> M2")
	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(StateM2)}},
		{Tag: TagSalt, Value: srp.Salt()},
		{Tag: TagPublicKey, Value: srp.PublicKey()},
	}, nil
}

// HandleM3 verifies the client's SRP proof and returns the M4 response.
func (s *Setup) HandleM3(items []tlv8.Item) ([]tlv8.Item, error) {
	A, ok := tlv8.Get(items, TagPublicKey)
	if !ok {
		return s.fail(StateM4, ErrorUnknown, fmt.Errorf("pair: M3 missing public key"))
	}
	clientProof, ok := tlv8.Get(items, TagProof)
	if !ok {
		return s.fail(StateM4, ErrorUnknown, fmt.Errorf("pair: M3 missing proof"))
	}

	serverProof, err := s.srp.VerifyClientProof(A, clientProof)
	if err != nil {
		time.Sleep(authDelay)
		return s.fail(StateM4, ErrorAuthentication, err)
	}

	log.Pairing.Debug().Msg("pair-setup M3 -> M4")
	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(StateM4)}},
		{Tag: TagProof, Value: serverProof},
	}, nil
}

// HandleM5 decrypts the controller's identity sub-TLV, verifies its
// signature, persists the new admin pairing, and returns the M6 response
// (the server's own identity, proven with its own signature).
func (s *Setup) HandleM5(items []tlv8.Item) ([]tlv8.Item, error) {
	encrypted, ok := tlv8.Get(items, TagEncryptedData)
	if !ok {
		return s.fail(StateM6, ErrorUnknown, fmt.Errorf("pair: M5 missing encrypted data"))
	}

	sharedSecret := s.srp.SharedSecret()
	key, err := crypto.HKDF(sharedSecret, "Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info", 32)
	if err != nil {
		return s.fail(StateM6, ErrorUnknown, err)
	}

	plaintext, err := crypto.OpenWithNonce(key, nonceLabel("PS-Msg05"), nil, encrypted)
	if err != nil {
		return s.fail(StateM6, ErrorAuthentication, err)
	}

	subItems, err := tlv8.Decode(plaintext)
	if err != nil {
		return s.fail(StateM6, ErrorUnknown, err)
	}

	username, ok := tlv8.Get(subItems, TagIdentifier)
	if !ok {
		return s.fail(StateM6, ErrorUnknown, fmt.Errorf("pair: M5 missing identifier"))
	}
	ltpk, ok := tlv8.Get(subItems, TagPublicKey)
	if !ok || len(ltpk) != ed25519.PublicKeySize {
		return s.fail(StateM6, ErrorUnknown, fmt.Errorf("pair: M5 missing/invalid public key"))
	}
	signature, ok := tlv8.Get(subItems, TagSignature)
	if !ok {
		return s.fail(StateM6, ErrorUnknown, fmt.Errorf("pair: M5 missing signature"))
	}

	signKey, err := crypto.HKDF(sharedSecret, "Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info", 32)
	if err != nil {
		return s.fail(StateM6, ErrorUnknown, err)
	}
	material := append(append([]byte{}, signKey...), append(append([]byte{}, username...), ltpk...)...)
	if !crypto.Verify(ltpk, material, signature) {
		return s.fail(StateM6, ErrorAuthentication, fmt.Errorf("pair: M5 signature verification failed"))
	}

	if err := s.pairings.Add(string(username), ltpk, db.PermAdmin); err != nil {
		return s.fail(StateM6, ErrorUnknown, err)
	}

	accSignKey, err := crypto.HKDF(sharedSecret, "Pair-Setup-Accessory-Sign-Salt", "Pair-Setup-Accessory-Sign-Info", 32)
	if err != nil {
		return s.fail(StateM6, ErrorUnknown, err)
	}
	pub, priv := s.identity.KeyPair()
	accMaterial := append(append([]byte{}, accSignKey...), append(append([]byte{}, []byte(s.identity.DeviceID)...), pub...)...)
	accSig := crypto.Sign(priv, accMaterial)

	respPlain := tlv8.Encode(
		tlv8.Item{Tag: TagIdentifier, Value: []byte(s.identity.DeviceID)},
		tlv8.Item{Tag: TagPublicKey, Value: pub},
		tlv8.Item{Tag: TagSignature, Value: accSig},
	)
	respEncrypted, err := crypto.SealWithNonce(key, nonceLabel("PS-Msg06"), nil, respPlain)
	if err != nil {
		return s.fail(StateM6, ErrorUnknown, err)
	}

	s.co.end(true)
	log.Pairing.Info().Str("username", string(username)).Msg("pair-setup complete, controller is admin")

	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(StateM6)}},
		{Tag: TagEncryptedData, Value: respEncrypted},
	}, nil
}

// fail ends the single-flight slot as a failure and builds the TLV8 error
// reply for state, the M-number of the response that would have followed
// success (M4 for an M3 failure, M6 for an M5 failure).
func (s *Setup) fail(state State, code ErrorCode, cause error) ([]tlv8.Item, error) {
	s.co.end(false)
	log.Pairing.Warn().Err(cause).Msg("pair-setup failed")
	return []tlv8.Item{
		{Tag: TagState, Value: []byte{byte(state)}},
		{Tag: TagError, Value: []byte{byte(code)}},
	}, nil
}

// nonceLabel pads HAP's fixed ASCII nonce labels ("PS-Msg05"/"PS-Msg06") to
// the AEAD's 12-byte nonce size, as required for pair-setup's sub-TLV
// encryption (which, unlike the framed transport, uses a fixed nonce per
// message rather than a counter since each key is used exactly twice).
func nonceLabel(label string) []byte {
	nonce := make([]byte, 12)
	copy(nonce[12-len(label):], label)
	return nonce
}
