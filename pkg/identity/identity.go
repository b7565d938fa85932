// Package identity defines the service node key types: the 32-byte X25519
// public key used as a peer identifier and the node's own key pair.
package identity

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of X25519 public and private keys in bytes.
const KeySize = 32

var (
	// ErrInvalidKeyLength is returned when raw key bytes are not KeySize long.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrInvalidKeyEncoding is returned when a hex key cannot be decoded.
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")

	// ErrKeyPairDestroyed is returned when a destroyed key pair is used.
	ErrKeyPairDestroyed = errors.New("key pair destroyed")
)

// PublicKey identifies a service node. It is comparable and can be used
// directly as a map key.
type PublicKey [KeySize]byte

// PublicKeyFromBytes copies b into a PublicKey. Only the length is checked;
// invalid curve points are rejected when the key is used.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != KeySize {
		return pk, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// ParsePublicKey decodes a hex encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	return PublicKeyFromBytes(b)
}

// String returns the lowercase hex encoding of the key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 8 hex characters, for log lines.
func (k PublicKey) Short() string {
	return k.String()[:8]
}

// Bytes returns a copy of the key bytes.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, KeySize)
	copy(b, k[:])
	return b
}

// Compare orders keys bytewise. It returns -1, 0 or +1.
func (k PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(k[:], other[:])
}

// IsZero reports whether every byte of the key is zero.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	pk, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = pk
	return nil
}

// PrivateKey is an X25519 private scalar. Its String and GoString methods
// never print the scalar.
type PrivateKey [KeySize]byte

// ParsePrivateKey decodes a hex encoded private scalar.
func ParsePrivateKey(s string) (PrivateKey, error) {
	var sk PrivateKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return sk, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	defer wipe(b)
	if len(b) != KeySize {
		return sk, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(b))
	}
	copy(sk[:], b)
	return sk, nil
}

func (PrivateKey) String() string   { return "PrivateKey{REDACTED}" }
func (PrivateKey) GoString() string { return "identity.PrivateKey{REDACTED}" }

// KeyPair holds the node's private scalar and the matching public key.
//
// The scalar never leaves the key pair except through Use, which lends it
// for the duration of a callback. KeyPair is safe for concurrent use.
type KeyPair struct {
	mu        sync.RWMutex
	private   PrivateKey
	public    PublicKey
	destroyed bool
}

// NewKeyPair builds a key pair from a private scalar, deriving the public key.
// The caller's copy of the scalar is not modified.
func NewKeyPair(private PrivateKey) (*KeyPair, error) {
	pub, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	kp := &KeyPair{private: private}
	copy(kp.public[:], pub)
	return kp, nil
}

// GenerateKeyPair creates a key pair from KeySize bytes read from r.
func GenerateKeyPair(r io.Reader) (*KeyPair, error) {
	var sk PrivateKey
	if _, err := io.ReadFull(r, sk[:]); err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	clamp(sk[:])
	kp, err := NewKeyPair(sk)
	wipe(sk[:])
	return kp, err
}

// Public returns the public key.
func (kp *KeyPair) Public() PublicKey {
	return kp.public
}

// Use calls fn with the private scalar held under a read lock. fn must not
// retain the pointer after it returns.
func (kp *KeyPair) Use(fn func(private *PrivateKey) error) error {
	kp.mu.RLock()
	defer kp.mu.RUnlock()
	if kp.destroyed {
		return ErrKeyPairDestroyed
	}
	return fn(&kp.private)
}

// Destroy zeroes the private scalar. Subsequent calls to Use fail.
func (kp *KeyPair) Destroy() {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	wipe(kp.private[:])
	kp.destroyed = true
}

// String prints the public key only.
func (kp *KeyPair) String() string {
	return "KeyPair{" + kp.public.String() + "}"
}

func clamp(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
