// Package crypto implements the service node secure channel: static X25519
// key agreement and AES-256-CBC envelopes keyed by the raw shared secret.
//
// An envelope is IV (16 bytes) followed by the PKCS#7 padded ciphertext.
// There is no length prefix and no authentication tag.
package crypto

import "errors"

var (
	// ErrInvalidPeerKey is returned when a peer public key is malformed or
	// has the wrong length.
	ErrInvalidPeerKey = errors.New("invalid peer key")

	// ErrKeyAgreementFailure is returned when scalar multiplication yields a
	// degenerate shared secret.
	ErrKeyAgreementFailure = errors.New("key agreement failure")

	// ErrMalformedEnvelope is returned when an envelope is shorter than the IV.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrDecryptionFailure is returned for every decrypt failure past the IV
	// split. The cause is deliberately not reported.
	ErrDecryptionFailure = errors.New("decryption failed")

	// ErrRandomSourceUnavailable is returned when the IV cannot be read from
	// the random source.
	ErrRandomSourceUnavailable = errors.New("random source unavailable")

	// ErrChannelClosed is returned by a channel after Close.
	ErrChannelClosed = errors.New("channel closed")
)
