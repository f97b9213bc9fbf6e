// Package crypto wraps the primitives the pairing state machine needs: SRP-6a
// (server side, group 3072), Ed25519 signing, Curve25519 ECDH, HKDF-SHA512
// and ChaCha20-Poly1305 framed AEAD. No suitable third-party SRP
// implementation was available to reach for, so the verifier/server
// exchange is hand-rolled on top of math/big and crypto/sha512 — see
// DESIGN.md for the justification.
package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"math/big"
)

// SRP group 3072 per RFC 5054 / HAP's required group size.
var (
	srpN, _ = new(big.Int).SetString(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E08"+
			"8A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B"+
			"302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9"+
			"A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE6"+
			"49286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA"+
			"8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D"+
			"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C"+
			"180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183"+
			"995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFF"+
			"FFFFFF", 16)
	srpG = big.NewInt(5)
	srpK = func() *big.Int {
		h := sha512.New()
		h.Write(padTo(srpN, len(srpN.Bytes())))
		h.Write(padTo(srpG, len(srpN.Bytes())))
		return new(big.Int).SetBytes(h.Sum(nil))
	}()
)

// ErrSRPAuthentication is returned by VerifyClientProof when the client's
// M1 proof does not match the server's computation.
var ErrSRPAuthentication = errors.New("crypto: srp authentication failed")

// SRPServer runs the server half of the SRP-6a exchange for pair-setup's
// username "Pair-Setup".
type SRPServer struct {
	salt     []byte
	verifier *big.Int

	b *big.Int // server private
	B *big.Int // server public

	a *big.Int // client public, learned at M3
	u *big.Int
	S *big.Int // shared secret
}

// NewSRPServer derives a verifier from pincode and a fresh salt, and
// computes the server's ephemeral key pair (b, B).
func NewSRPServer(pincode string) (*SRPServer, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	x := srpX(salt, "Pair-Setup", pincode)
	verifier := new(big.Int).Exp(srpG, x, srpN)

	b, err := rand.Int(rand.Reader, srpN)
	if err != nil {
		return nil, err
	}

	// B = k*v + g^b % N
	B := new(big.Int).Add(
		new(big.Int).Mod(new(big.Int).Mul(srpK, verifier), srpN),
		new(big.Int).Exp(srpG, b, srpN),
	)
	B.Mod(B, srpN)

	return &SRPServer{salt: salt, verifier: verifier, b: b, B: B}, nil
}

// Salt returns the 16-byte salt to send in M2.
func (s *SRPServer) Salt() []byte { return s.salt }

// PublicKey returns B, the server's public ephemeral value, for M2.
func (s *SRPServer) PublicKey() []byte { return padTo(s.B, srpByteLen) }

// VerifyClientProof checks the client's M1 value given its public key A.
// On success it returns the server's M2 proof. The caller is responsible
// for enforcing a minimum delay and attempt throttling on failed proofs.
func (s *SRPServer) VerifyClientProof(A, clientM1 []byte) (serverM2 []byte, err error) {
	aNum := new(big.Int).SetBytes(A)
	if new(big.Int).Mod(aNum, srpN).Sign() == 0 {
		return nil, ErrSRPAuthentication
	}
	s.a = aNum

	u := srpU(padTo(aNum, srpByteLen), s.B.Bytes())
	if u.Sign() == 0 {
		return nil, ErrSRPAuthentication
	}
	s.u = u

	// S = (A * v^u) ^ b % N
	base := new(big.Int).Mod(new(big.Int).Mul(aNum, new(big.Int).Exp(s.verifier, u, srpN)), srpN)
	S := new(big.Int).Exp(base, s.b, srpN)
	s.S = S

	expectedM1 := srpM1(s.salt, aNum, s.B, S)
	if !constantTimeEqual(expectedM1, clientM1) {
		return nil, ErrSRPAuthentication
	}

	return srpM2(aNum, expectedM1, S), nil
}

// SharedSecret returns the raw SRP premaster secret S, used as HKDF IKM for
// the pair-setup encryption keys.
func (s *SRPServer) SharedSecret() []byte {
	return padTo(s.S, srpByteLen)
}

const srpByteLen = 384 // 3072 bits

func padTo(n *big.Int, length int) []byte {
	b := n.Bytes()
	if len(b) >= length {
		return b
	}
	out := make([]byte, length)
	copy(out[length-len(b):], b)
	return out
}

func srpX(salt []byte, username, pincode string) *big.Int {
	inner := sha512.Sum512([]byte(username + ":" + pincode))
	h := sha512.New()
	h.Write(salt)
	h.Write(inner[:])
	return new(big.Int).SetBytes(h.Sum(nil))
}

func srpU(A, B []byte) *big.Int {
	h := sha512.New()
	h.Write(A)
	h.Write(B)
	return new(big.Int).SetBytes(h.Sum(nil))
}

func srpM1(salt []byte, A, B, S *big.Int) []byte {
	hN := sha512.Sum512(srpN.Bytes())
	hG := sha512.Sum512(srpG.Bytes())
	xor := make([]byte, len(hN))
	for i := range hN {
		xor[i] = hN[i] ^ hG[i]
	}

	hUser := sha512.Sum512([]byte("Pair-Setup"))

	h := sha512.New()
	h.Write(xor)
	h.Write(hUser[:])
	h.Write(salt)
	h.Write(A.Bytes())
	h.Write(B.Bytes())
	h.Write(padTo(S, srpByteLen))
	return h.Sum(nil)
}

func srpM2(A *big.Int, clientM1 []byte, S *big.Int) []byte {
	h := sha512.New()
	h.Write(A.Bytes())
	h.Write(clientM1)
	h.Write(padTo(S, srpByteLen))
	return h.Sum(nil)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
