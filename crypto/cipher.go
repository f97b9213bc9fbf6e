package crypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher wraps a single ChaCha20-Poly1305 AEAD instance for one direction of
// a session. Per spec, the nonce is an 8-byte little-endian counter
// left-padded to the AEAD's 12-byte nonce size, and the counter increments
// after every frame and never resets except on a fresh session.
type Cipher struct {
	aead    chacha20poly1305.AEAD
	counter uint64
}

// NewCipher builds a Cipher from a 32-byte key (as produced by HKDF).
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) nonce() []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], c.counter)
	return nonce
}

// Seal encrypts plaintext with aad as additional authenticated data and
// advances the nonce counter.
func (c *Cipher) Seal(aad, plaintext []byte) []byte {
	out := c.aead.Seal(nil, c.nonce(), plaintext, aad)
	c.counter++
	return out
}

// Open decrypts ciphertext (which includes the trailing auth tag) using aad,
// advancing the nonce counter whether or not decryption succeeds — HAP frame
// sequencing is strict, and a failed frame must close the connection rather
// than letting the counter drift.
func (c *Cipher) Open(aad, ciphertext []byte) ([]byte, error) {
	defer func() { c.counter++ }()
	out, err := c.aead.Open(nil, c.nonce(), ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return out, nil
}

// Overhead is the trailing auth tag size added to every ciphertext.
func (c *Cipher) Overhead() int { return c.aead.Overhead() }

// SealWithNonce performs a single AEAD seal using an explicit 12-byte nonce
// rather than the per-direction frame counter. The pairing sub-TLV
// exchanges (pair-setup M5/M6, pair-verify M1/M3) each use a fixed ASCII
// nonce label exactly once per key, unlike the framed transport's
// monotonic counter.
func SealWithNonce(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenWithNonce is the inverse of SealWithNonce.
func OpenWithNonce(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	out, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return out, nil
}
