package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"
)

const (
	// IVSize is the size of the IV prepended to every envelope.
	IVSize = aes.BlockSize // 16 bytes

	// KeySize is the AES-256 key size.
	KeySize = 32
)

// Cipher encrypts and decrypts envelopes with AES-256-CBC and PKCS#7
// padding. It is safe for concurrent use, Close included; operations
// after Close fail with ErrChannelClosed.
type Cipher struct {
	mu     sync.RWMutex
	block  cipher.Block
	key    []byte // our copy, zeroed on Close
	random io.Reader
	closed bool
}

// NewCipher creates a cipher for a 32-byte key. IVs are read from
// crypto/rand.
func NewCipher(key []byte) (*Cipher, error) {
	return newCipher(key, rand.Reader)
}

func newCipher(key []byte, random io.Reader) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	block, err := aes.NewCipher(keyCopy)
	if err != nil {
		SecureZero(keyCopy)
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &Cipher{block: block, key: keyCopy, random: random}, nil
}

// Encrypt pads and encrypts plaintext under a fresh random IV.
// The returned envelope is: [16-byte IV][ciphertext]
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSourceUnavailable, err)
	}
	return c.EncryptWithIV(iv, plaintext)
}

// EncryptWithIV encrypts plaintext under the given IV.
// WARNING: Never reuse an IV with the same key.
func (c *Cipher) EncryptWithIV(iv, plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("invalid IV size: expected %d bytes, got %d", IVSize, len(iv))
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	out := make([]byte, IVSize+len(plaintext)+padLen)
	copy(out, iv)
	body := out[IVSize:]
	copy(body, plaintext)
	for i := len(plaintext); i < len(body); i++ {
		body[i] = byte(padLen)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(body, body)
	return out, nil
}

// Decrypt splits the IV from envelope, decrypts the remainder and strips
// the padding.
func (c *Cipher) Decrypt(envelope []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if len(envelope) < IVSize {
		return nil, fmt.Errorf("%w: minimum %d bytes, got %d", ErrMalformedEnvelope, IVSize, len(envelope))
	}

	iv := envelope[:IVSize]
	body := envelope[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailure
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, body)

	n, ok := unpad(plain)
	if ok != 1 {
		SecureZero(plain)
		return nil, ErrDecryptionFailure
	}
	return plain[:n], nil
}

// Close zeros our copy of the key once in-flight operations finish.
func (c *Cipher) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	SecureZero(c.key)
	c.key = nil
	c.block = nil
}

// IsClosed reports whether Close has been called.
func (c *Cipher) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// unpad validates PKCS#7 padding over the final block without branching on
// its contents. It returns the unpadded length and 1 when valid.
func unpad(b []byte) (int, int) {
	last := b[len(b)-1]
	padLen := int(last)

	ok := subtle.ConstantTimeLessOrEq(1, padLen) & subtle.ConstantTimeLessOrEq(padLen, aes.BlockSize)

	tail := b[len(b)-aes.BlockSize:]
	for i := range tail {
		inPad := subtle.ConstantTimeLessOrEq(aes.BlockSize-padLen, i)
		match := subtle.ConstantTimeByteEq(tail[i], last)
		// bytes inside the padding must equal last; others are ignored
		ok &= subtle.ConstantTimeSelect(inPad, match, 1)
	}

	n := subtle.ConstantTimeSelect(ok, len(b)-padLen, 0)
	return n, ok
}
