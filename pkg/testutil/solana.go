package testutil

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

// GenerateSolanaKeypair returns a fresh signing key.
func GenerateSolanaKeypair(t *testing.T) ed25519.PrivateKey {
	return GenerateSolanaKeypairs(t, 1)[0]
}

// GenerateSolanaKeypairs returns n fresh signing keys.
func GenerateSolanaKeypairs(t *testing.T, n int) []ed25519.PrivateKey {
	keys := make([]ed25519.PrivateKey, n)
	for i := range keys {
		_, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = priv
	}
	return keys
}

// GenerateSolanaKeys returns n addresses nobody is expected to sign for.
func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i, priv := range GenerateSolanaKeypairs(t, n) {
		keys[i] = PublicKey(priv)
	}
	return keys
}

// PublicKey returns the address of a signing key.
func PublicKey(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}
