package bbb

import (
	"crypto/rand"
	"math/big"
)

// Nonce returns a 64-char unpredictable token used to authenticate
// node-to-balancer callbacks.
func Nonce() string {
	return randomString(NonceLength, NonceCharPool)
}

// RandomSecret returns a fresh 42-char alphanumeric API secret.
func RandomSecret() string {
	return randomString(SecretLength, SecretCharPool)
}

func randomString(length int, pool string) string {
	out := make([]byte, length)
	max := big.NewInt(int64(len(pool)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source
			// is broken; there is no sane recovery for token material.
			panic(err)
		}
		out[i] = pool[n.Int64()]
	}
	return string(out)
}
