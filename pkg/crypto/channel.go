package crypto

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/sispop-dev/storage/pkg/identity"
)

// Payload is the set of container types a Channel can carry: text for API
// level payloads and raw bytes for relayed messages.
type Payload interface {
	~string | ~[]byte
}

// ChannelOption configures a Channel.
type ChannelOption func(*channelOptions)

type channelOptions struct {
	random   io.Reader
	keyCache bool
	observe  func(peer identity.PublicKey, cached bool)
}

// WithRandom sets the source IVs are read from. It must be a CSPRNG; a read
// failure makes Encrypt fail with ErrRandomSourceUnavailable.
func WithRandom(r io.Reader) ChannelOption {
	return func(o *channelOptions) {
		if r != nil {
			o.random = r
		}
	}
}

// WithKeyCache keeps derived shared secrets per peer until Forget or Close.
// Without it every call derives the secret and zeroes it afterwards.
func WithKeyCache() ChannelOption {
	return func(o *channelOptions) {
		o.keyCache = true
	}
}

// WithKeyObserver registers fn to be called each time a shared secret is
// obtained for peer, with cached set when it came from the key cache.
func WithKeyObserver(fn func(peer identity.PublicKey, cached bool)) ChannelOption {
	return func(o *channelOptions) {
		o.observe = fn
	}
}

// Channel encrypts payloads for, and decrypts payloads from, a named peer
// using the node's key pair.
//
// Channel is safe for concurrent use.
type Channel[T Payload] struct {
	keys    *identity.KeyPair
	random  io.Reader
	observe func(identity.PublicKey, bool)

	mu     sync.Mutex
	cache  map[identity.PublicKey][]byte // nil unless WithKeyCache
	closed bool
}

// NewChannel creates a channel for the given key pair. The key pair stays
// owned by the caller.
func NewChannel[T Payload](keys *identity.KeyPair, opts ...ChannelOption) *Channel[T] {
	o := channelOptions{random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Channel[T]{keys: keys, random: o.random, observe: o.observe}
	if o.keyCache {
		c.cache = make(map[identity.PublicKey][]byte)
	}
	return c
}

// PublicKey returns the local public key peers encrypt to.
func (c *Channel[T]) PublicKey() identity.PublicKey {
	return c.keys.Public()
}

// Encrypt returns IV || ciphertext of plaintext for peer.
func (c *Channel[T]) Encrypt(plaintext T, peer identity.PublicKey) (T, error) {
	var zero T
	ciph, err := c.cipherFor(peer)
	if err != nil {
		return zero, err
	}
	defer ciph.Close()

	out, err := ciph.Encrypt([]byte(plaintext))
	if err != nil {
		return zero, err
	}
	return T(out), nil
}

// Decrypt recovers the plaintext of an envelope sent by peer.
func (c *Channel[T]) Decrypt(envelope T, peer identity.PublicKey) (T, error) {
	var zero T
	if len(envelope) < IVSize {
		return zero, ErrMalformedEnvelope
	}

	ciph, err := c.cipherFor(peer)
	if err != nil {
		return zero, err
	}
	defer ciph.Close()

	out, err := ciph.Decrypt([]byte(envelope))
	if err != nil {
		return zero, err
	}
	return T(out), nil
}

// EncryptHex is Encrypt with the peer key given in hex.
func (c *Channel[T]) EncryptHex(plaintext T, peerHex string) (T, error) {
	peer, err := ParsePeerKey(peerHex)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Encrypt(plaintext, peer)
}

// DecryptHex is Decrypt with the peer key given in hex.
func (c *Channel[T]) DecryptHex(envelope T, peerHex string) (T, error) {
	peer, err := ParsePeerKey(peerHex)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Decrypt(envelope, peer)
}

// Forget zeroes and drops the cached secret for peer, if any.
func (c *Channel[T]) Forget(peer identity.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if secret, ok := c.cache[peer]; ok {
		SecureZero(secret)
		delete(c.cache, peer)
	}
}

// CachedPeers returns the number of cached shared secrets.
func (c *Channel[T]) CachedPeers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Close zeroes all cached secrets. Later calls fail with ErrChannelClosed.
// The key pair itself is not destroyed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for peer, secret := range c.cache {
		SecureZero(secret)
		delete(c.cache, peer)
	}
	c.closed = true
}

// cipherFor returns a cipher keyed by the shared secret with peer. The
// caller must Close it.
func (c *Channel[T]) cipherFor(peer identity.PublicKey) (*Cipher, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	if secret, ok := c.cache[peer]; ok {
		ciph, err := newCipher(secret, c.random)
		c.mu.Unlock()
		c.observed(peer, true)
		return ciph, err
	}
	c.mu.Unlock()

	var secret []byte
	err := c.keys.Use(func(sk *identity.PrivateKey) error {
		var err error
		secret, err = DeriveSharedSecret(sk, peer)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.observed(peer, false)

	ciph, err := newCipher(secret, c.random)
	if c.cache == nil {
		SecureZero(secret)
		return ciph, err
	}

	c.mu.Lock()
	if _, ok := c.cache[peer]; ok || c.closed {
		SecureZero(secret)
	} else {
		c.cache[peer] = secret
	}
	c.mu.Unlock()
	return ciph, err
}

func (c *Channel[T]) observed(peer identity.PublicKey, cached bool) {
	if c.observe != nil {
		c.observe(peer, cached)
	}
}
