package pair

import (
	"crypto/rand"
	"crypto/sha512"
	"math/big"
	"testing"
)

// A from-scratch SRP-6a client used only to drive pair_test.go's end-to-end
// exchange against the real server-side Setup type. It duplicates the
// public RFC 5054 group-3072 constants rather than reaching into the
// crypto package's unexported internals, keeping this test black-box
// against the server's actual wire behavior.

var (
	testSRPN, _ = new(big.Int).SetString(
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
	testSRPG = big.NewInt(5)
	testSRPK = func() *big.Int {
		h := sha512.New()
		h.Write(testPad(testSRPN))
		h.Write(testPad(testSRPG))
		return new(big.Int).SetBytes(h.Sum(nil))
	}()
)

const testSRPByteLen = 384

func testPad(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= testSRPByteLen {
		return b
	}
	out := make([]byte, testSRPByteLen)
	copy(out[testSRPByteLen-len(b):], b)
	return out
}

// srpClientExchange computes the client's ephemeral key pair (a, A) and the
// shared secret S, given the salt and server public key B from M2.
func srpClientExchange(t *testing.T, pin string, salt, B []byte) (a *big.Int, A []byte, S []byte) {
	t.Helper()

	aNum, err := rand.Int(rand.Reader, testSRPN)
	if err != nil {
		t.Fatal(err)
	}
	ANum := new(big.Int).Exp(testSRPG, aNum, testSRPN)

	bNum := new(big.Int).SetBytes(B)

	// Matches the server's u = H(pad(A) || B.Bytes()) exactly: A is padded
	// to the group size, B is hashed in its minimal (unpadded) big-endian
	// form.
	u := testSRPU(testPad(ANum), bNum.Bytes())
	x := testSRPX(salt, pin)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	kgx := new(big.Int).Mod(new(big.Int).Mul(testSRPK, new(big.Int).Exp(testSRPG, x, testSRPN)), testSRPN)
	base := new(big.Int).Mod(new(big.Int).Sub(bNum, kgx), testSRPN)
	exp := new(big.Int).Add(aNum, new(big.Int).Mul(u, x))
	sNum := new(big.Int).Exp(base, exp, testSRPN)

	return aNum, testPad(ANum), testPad(sNum)
}

// srpClientProof computes M1, the client's SRP proof, matching the server's
// srpM1 computation exactly.
func srpClientProof(salt, A, B, S []byte) []byte {
	hN := sha512.Sum512(testSRPN.Bytes())
	hG := sha512.Sum512(testSRPG.Bytes())
	xor := make([]byte, len(hN))
	for i := range hN {
		xor[i] = hN[i] ^ hG[i]
	}
	hUser := sha512.Sum512([]byte("Pair-Setup"))

	h := sha512.New()
	h.Write(xor)
	h.Write(hUser[:])
	h.Write(salt)
	h.Write(new(big.Int).SetBytes(A).Bytes())
	h.Write(new(big.Int).SetBytes(B).Bytes())
	h.Write(S)
	return h.Sum(nil)
}

func testSRPU(A, B []byte) *big.Int {
	h := sha512.New()
	h.Write(A)
	h.Write(B)
	return new(big.Int).SetBytes(h.Sum(nil))
}

func testSRPX(salt []byte, pin string) *big.Int {
	inner := sha512.Sum512([]byte("Pair-Setup:" + pin))
	h := sha512.New()
	h.Write(salt)
	h.Write(inner[:])
	return new(big.Int).SetBytes(h.Sum(nil))
}
