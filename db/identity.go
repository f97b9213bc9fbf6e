package db

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	hapcrypto "github.com/brutella/hap/crypto"
)

// Identity is the server's stable, persisted identity: its HAP device id
// (a 17-character MAC-like string), long-term Ed25519 key pair, its human
// setup pincode, and its setup id used in the QR/TXT setup payload.
type Identity struct {
	DeviceID   string `json:"device_id"`
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
	Pincode    string `json:"pincode"`
	SetupID    string `json:"setup_id"`
}

// identityRecord is the on-disk JSON shape, keeping keys base64-friendly
// without relying on json's default []byte-as-base64 behavior changing.
type identityRecord struct {
	DeviceID   string `json:"device_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Pincode    string `json:"pincode"`
	SetupID    string `json:"setup_id"`
}

const identityKey = "identity"

// LoadOrCreateIdentity loads the persisted identity from store, or
// generates and persists a fresh one on first run (store has nothing under
// identityKey).
func LoadOrCreateIdentity(store Store) (*Identity, error) {
	raw, err := store.Get(identityKey)
	if err == nil {
		return decodeIdentity(raw)
	}
	if err != ErrNotFound {
		return nil, fmt.Errorf("db: load identity: %w", err)
	}

	id, genErr := generateIdentity()
	if genErr != nil {
		return nil, genErr
	}
	if err := persistIdentity(store, id); err != nil {
		return nil, err
	}
	return id, nil
}

func generateIdentity() (*Identity, error) {
	pub, priv, err := hapcrypto.GenerateLongTermKeyPair()
	if err != nil {
		return nil, fmt.Errorf("db: generate identity key: %w", err)
	}

	deviceID, err := randomMACLike()
	if err != nil {
		return nil, err
	}

	pincode, err := RandomPincode()
	if err != nil {
		return nil, err
	}

	setupID, err := randomSetupID()
	if err != nil {
		return nil, err
	}

	return &Identity{
		DeviceID:   deviceID,
		PublicKey:  []byte(pub),
		PrivateKey: []byte(priv),
		Pincode:    pincode,
		SetupID:    setupID,
	}, nil
}

func persistIdentity(store Store, id *Identity) error {
	raw, err := encodeIdentity(id)
	if err != nil {
		return err
	}
	if err := store.Set(identityKey, raw); err != nil {
		return fmt.Errorf("db: persist identity: %w", err)
	}
	return nil
}

func encodeIdentity(id *Identity) ([]byte, error) {
	rec := identityRecord{
		DeviceID:   id.DeviceID,
		PublicKey:  base64.StdEncoding.EncodeToString(id.PublicKey),
		PrivateKey: base64.StdEncoding.EncodeToString(id.PrivateKey),
		Pincode:    id.Pincode,
		SetupID:    id.SetupID,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("db: encode identity: %w", err)
	}
	return b, nil
}

func decodeIdentity(raw []byte) (*Identity, error) {
	var rec identityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("db: decode identity: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(rec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("db: decode identity public key: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("db: decode identity private key: %w", err)
	}
	return &Identity{
		DeviceID:   rec.DeviceID,
		PublicKey:  pub,
		PrivateKey: priv,
		Pincode:    rec.Pincode,
		SetupID:    rec.SetupID,
	}, nil
}

// Save re-persists the identity (used after manual pincode rotation, etc).
func (id *Identity) Save(store Store) error {
	return persistIdentity(store, id)
}

// KeyPair returns the identity's Ed25519 key pair.
func (id *Identity) KeyPair() (ed25519.PublicKey, ed25519.PrivateKey) {
	return ed25519.PublicKey(id.PublicKey), ed25519.PrivateKey(id.PrivateKey)
}

var trivialPincodes = map[string]bool{
	"000-00-000": true, "111-11-111": true, "222-22-222": true,
	"333-33-333": true, "444-44-444": true, "555-55-555": true,
	"666-66-666": true, "777-77-777": true, "888-88-888": true,
	"999-99-999": true, "123-45-678": true, "876-54-321": true,
}

// RandomPincode generates a pincode in NNN-NN-NNN form, rejecting the
// trivial, easily-guessed codes.
func RandomPincode() (string, error) {
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(100000000))
		if err != nil {
			return "", fmt.Errorf("db: random pincode: %w", err)
		}
		digits := fmt.Sprintf("%08d", n.Int64())
		pin := fmt.Sprintf("%s-%s-%s", digits[0:3], digits[3:5], digits[5:8])
		if !trivialPincodes[pin] {
			return pin, nil
		}
	}
}

func randomMACLike() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("db: random device id: %w", err)
	}
	parts := make([]string, 6)
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02X", x)
	}
	return strings.Join(parts, ":"), nil
}

func randomSetupID() (string, error) {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	out := make([]byte, 4)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("db: random setup id: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
