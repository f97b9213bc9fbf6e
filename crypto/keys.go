package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// GenerateLongTermKeyPair creates a new Ed25519 identity, used both by the
// server (once, persisted for its lifetime) and conceptually by controllers.
func GenerateLongTermKeyPair() (pub ed25519.PublicKey, priv ed25519.PrivateKey, err error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign produces a detached Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify checks a detached Ed25519 signature.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// GenerateCurve25519KeyPair creates an ephemeral X25519 key pair for a single
// pair-verify session.
func GenerateCurve25519KeyPair() (pub, priv [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(pub[:], p)
	return
}

// ECDH computes the shared secret for a local private key and a peer's
// public key.
func ECDH(priv [32]byte, peerPub []byte) ([]byte, error) {
	return curve25519.X25519(priv[:], peerPub)
}

// HKDF derives keySize bytes from ikm using HKDF-SHA512 with the given salt
// and info strings, exactly as the HAP pairing/verify key-derivation tables name
// them (e.g. "Pair-Setup-Encrypt-Salt" / "Pair-Setup-Encrypt-Info").
func HKDF(ikm []byte, salt, info string, keySize int) ([]byte, error) {
	r := hkdf.New(newSHA512, ikm, []byte(salt), []byte(info))
	out := make([]byte, keySize)
	if _, err := r.Read(out); err != nil {
		return nil, fmt.Errorf("crypto: hkdf: %w", err)
	}
	return out, nil
}
