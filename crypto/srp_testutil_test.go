package crypto

import (
	"crypto/rand"
	"math/big"
	"testing"
)

// These helpers exist only so the SRP test can play the client side of the
// exchange with the same bigint arithmetic the server uses, without
// depending on a separate SRP client implementation.

func newTestPrivate(t *testing.T) *big.Int {
	t.Helper()
	a, err := rand.Int(rand.Reader, srpN)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func new4096Pow(base, exp *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, srpN)
}

func new4096Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), srpN)
}

func new4096MulMod(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(a, b), srpN)
}

func new4096Add(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(a, b), srpN)
}

func new4096Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Sub(a, b), srpN)
}
