package crypto

import (
	"crypto/subtle"
	"fmt"

	"github.com/sispop-dev/storage/pkg/identity"
	"golang.org/x/crypto/curve25519"
)

// SharedSecretSize is the size of the X25519 shared secret, which is also
// the AES-256 key size.
const SharedSecretSize = 32

var zeroSecret [SharedSecretSize]byte

// DeriveSharedSecret multiplies the local scalar with the peer's public point.
// The raw result is returned unhashed; callers zero it when done.
func DeriveSharedSecret(local *identity.PrivateKey, peer identity.PublicKey) ([]byte, error) {
	secret, err := curve25519.X25519(local[:], peer[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyAgreementFailure, err)
	}

	// curve25519.X25519 rejects low-order points itself; keep the explicit
	// check so a zero key can never reach the cipher.
	if subtle.ConstantTimeCompare(secret, zeroSecret[:]) == 1 {
		return nil, fmt.Errorf("%w: all-zero output (low-order point)", ErrKeyAgreementFailure)
	}

	return secret, nil
}

// DeriveSharedSecretBytes is DeriveSharedSecret over raw byte slices.
func DeriveSharedSecretBytes(localPrivate, remotePublic []byte) ([]byte, error) {
	if len(localPrivate) != identity.KeySize {
		return nil, fmt.Errorf("invalid X25519 private key size: expected %d, got %d",
			identity.KeySize, len(localPrivate))
	}
	peer, err := identity.PublicKeyFromBytes(remotePublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}

	var sk identity.PrivateKey
	copy(sk[:], localPrivate)
	defer SecureZero(sk[:])

	return DeriveSharedSecret(&sk, peer)
}

// ParsePeerKey decodes a hex peer key, mapping every failure to
// ErrInvalidPeerKey.
func ParsePeerKey(s string) (identity.PublicKey, error) {
	pk, err := identity.ParsePublicKey(s)
	if err != nil {
		return identity.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	return pk, nil
}

// SecureZero overwrites b with zeros.
func SecureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
