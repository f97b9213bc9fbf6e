// Package session implements the per-connection state machine: the
// plaintext-then-encrypted net.Conn wrapper (component G, the framed
// transport) and the Session type tracking the outgoing event queue, the
// verified controller and the prepared-write token for one TCP connection.
package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/brutella/hap/crypto"
)

// MaxFramePlaintext is the largest plaintext payload a single encrypted
// frame may carry; longer writes are split across multiple frames.
const MaxFramePlaintext = 1024

// Conn wraps a net.Conn, starting in plaintext and upgrading each direction
// to ChaCha20-Poly1305 framed encryption independently once pair-verify
// succeeds. Reads/writes before the respective upgrade pass bytes through
// unmodified (HTTP/1.1 and TLV8 pairing traffic).
type Conn struct {
	net.Conn

	mutex       sync.Mutex
	readCipher  *crypto.Cipher
	writeCipher *crypto.Cipher

	readBuf bytes.Buffer

	// writeMu serializes whole Write calls (distinct from mutex, which only
	// guards the cipher pointers) so the HTTP response writer and the
	// session's EVENT/1.0 push goroutine never interleave frames on the
	// wire.
	writeMu sync.Mutex
}

// NewConn wraps c for use by the session/HTTP layers.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// UpgradeRead switches subsequent Reads to decrypt frames with key (the
// C->A control-read-encryption-key).
func (c *Conn) UpgradeRead(key []byte) error {
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return fmt.Errorf("session: upgrade read: %w", err)
	}
	c.mutex.Lock()
	c.readCipher = cipher
	c.mutex.Unlock()
	return nil
}

// UpgradeWrite switches subsequent Writes to encrypt frames with key (the
// A->C control-write-encryption-key). Call this only after the final
// plaintext bytes of the M4 response have already been written.
func (c *Conn) UpgradeWrite(key []byte) error {
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return fmt.Errorf("session: upgrade write: %w", err)
	}
	c.mutex.Lock()
	c.writeCipher = cipher
	c.mutex.Unlock()
	return nil
}

// IsEncrypted reports whether both directions have upgraded.
func (c *Conn) IsEncrypted() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.readCipher != nil && c.writeCipher != nil
}

// Read implements io.Reader. While the read side is plaintext, bytes pass
// straight through; once upgraded, it decodes length-prefixed AEAD frames
// and serves decrypted plaintext out of an internal buffer.
func (c *Conn) Read(p []byte) (int, error) {
	c.mutex.Lock()
	cipher := c.readCipher
	c.mutex.Unlock()

	if cipher == nil {
		return c.Conn.Read(p)
	}

	if c.readBuf.Len() > 0 {
		return c.readBuf.Read(p)
	}

	plaintext, err := c.readFrame(cipher)
	if err != nil {
		return 0, err
	}
	c.readBuf.Write(plaintext)
	return c.readBuf.Read(p)
}

func (c *Conn) readFrame(cipher *crypto.Cipher) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := readFull(c.Conn, lenBuf[:]); err != nil {
		return nil, err
	}
	length := int(binary.LittleEndian.Uint16(lenBuf[:]))

	body := make([]byte, length+cipher.Overhead())
	if _, err := readFull(c.Conn, body); err != nil {
		return nil, err
	}

	plaintext, err := cipher.Open(lenBuf[:], body)
	if err != nil {
		return nil, fmt.Errorf("session: mac failure, closing connection: %w", err)
	}
	return plaintext, nil
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Write implements io.Writer. While the write side is plaintext, bytes pass
// straight through; once upgraded, p is split into <=MaxFramePlaintext
// chunks, each sealed as its own frame.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mutex.Lock()
	cipher := c.writeCipher
	c.mutex.Unlock()

	if cipher == nil {
		return c.Conn.Write(p)
	}

	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > MaxFramePlaintext {
			n = MaxFramePlaintext
		}
		chunk := p[:n]
		p = p[n:]

		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(n))
		ciphertext := cipher.Seal(lenBuf[:], chunk)

		if _, err := c.Conn.Write(lenBuf[:]); err != nil {
			return total, err
		}
		if _, err := c.Conn.Write(ciphertext); err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
