package identity

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// FromEd25519 converts an Ed25519 service node key into its X25519 key pair.
// The private scalar is the clamped first half of SHA-512(seed).
func FromEd25519(edPriv ed25519.PrivateKey) (*KeyPair, error) {
	if len(edPriv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: Ed25519 private key expected %d bytes, got %d",
			ErrInvalidKeyLength, ed25519.PrivateKeySize, len(edPriv))
	}

	h := sha512.Sum512(edPriv.Seed())
	defer wipe(h[:])

	var sk PrivateKey
	copy(sk[:], h[:KeySize])
	clamp(sk[:])
	defer wipe(sk[:])

	return NewKeyPair(sk)
}

// PublicFromEd25519 maps an Ed25519 public key to the X25519 public key of
// the same node.
func PublicFromEd25519(edPub ed25519.PublicKey) (PublicKey, error) {
	if len(edPub) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: Ed25519 public key expected %d bytes, got %d",
			ErrInvalidKeyLength, ed25519.PublicKeySize, len(edPub))
	}
	p, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}
	return PublicKeyFromBytes(p.BytesMontgomery())
}
