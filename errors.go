package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sispop-dev/storage/pkg/addressbook"
	"github.com/sispop-dev/storage/pkg/crypto"
	"github.com/sispop-dev/storage/pkg/identity"
)

// ErrorCode identifies the type of error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unclassified error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeInvalidPeerKey indicates a malformed or wrong-length peer key.
	ErrCodeInvalidPeerKey

	// ErrCodeKeyAgreementFailed indicates a degenerate shared secret. The
	// session with the peer should be aborted.
	ErrCodeKeyAgreementFailed

	// ErrCodeMalformedEnvelope indicates an envelope shorter than the IV.
	ErrCodeMalformedEnvelope

	// ErrCodeDecryptionFailed indicates the envelope did not decrypt.
	ErrCodeDecryptionFailed

	// ErrCodeRandomSourceUnavailable indicates the CSPRNG failed. It is fatal.
	ErrCodeRandomSourceUnavailable

	// ErrCodePeerNotFound indicates the peer is not in the address book.
	ErrCodePeerNotFound

	// ErrCodePeerBlacklisted indicates the peer is blacklisted.
	ErrCodePeerBlacklisted

	// ErrCodeReportFailed indicates the daemon did not accept a report.
	ErrCodeReportFailed

	// ErrCodeContextCanceled indicates the operation was cancelled via context.
	ErrCodeContextCanceled

	// ErrCodeInvalidConfig indicates the configuration is invalid.
	ErrCodeInvalidConfig

	// ErrCodeNodeNotStarted indicates the node has not been started.
	ErrCodeNodeNotStarted

	// ErrCodeNodeAlreadyStarted indicates the node is already running.
	ErrCodeNodeAlreadyStarted
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknown:
		return "Unknown"
	case ErrCodeInvalidPeerKey:
		return "InvalidPeerKey"
	case ErrCodeKeyAgreementFailed:
		return "KeyAgreementFailed"
	case ErrCodeMalformedEnvelope:
		return "MalformedEnvelope"
	case ErrCodeDecryptionFailed:
		return "DecryptionFailed"
	case ErrCodeRandomSourceUnavailable:
		return "RandomSourceUnavailable"
	case ErrCodePeerNotFound:
		return "PeerNotFound"
	case ErrCodePeerBlacklisted:
		return "PeerBlacklisted"
	case ErrCodeReportFailed:
		return "ReportFailed"
	case ErrCodeContextCanceled:
		return "ContextCanceled"
	case ErrCodeInvalidConfig:
		return "InvalidConfig"
	case ErrCodeNodeNotStarted:
		return "NodeNotStarted"
	case ErrCodeNodeAlreadyStarted:
		return "NodeAlreadyStarted"
	default:
		return fmt.Sprintf("ErrorCode(%d)", c)
	}
}

// Error is a storage node error with structured context.
type Error struct {
	// Code identifies the type of error.
	Code ErrorCode

	// Message is a human-readable description. For decryption failures it
	// never names the cause.
	Message string

	// Peer is the peer associated with the error, if any.
	Peer identity.PublicKey

	// Cause is the underlying error, if any. It may carry detail that must
	// only be logged, never returned to a remote party.
	Cause error

	// Retriable indicates whether the operation can be retried.
	Retriable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage: %s: %v", e.Message, e.Cause)
	}
	return "storage: " + e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// PublicMessage is the text safe to return to a remote caller.
func (e *Error) PublicMessage() string {
	return e.Message
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) ErrorCode {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Code
	}
	return ErrCodeUnknown
}

// IsRetriable reports whether err is an *Error marked retriable.
func IsRetriable(err error) bool {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Retriable
	}
	return false
}

// IsPermanent reports whether retrying the operation cannot help.
func IsPermanent(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInvalidPeerKey, ErrCodeKeyAgreementFailed, ErrCodeMalformedEnvelope,
		ErrCodeDecryptionFailed, ErrCodeRandomSourceUnavailable,
		ErrCodePeerBlacklisted, ErrCodeInvalidConfig:
		return true
	}
	return false
}

// IsFatal reports whether the process should stop: the random source is gone.
func IsFatal(err error) bool {
	return CodeOf(err) == ErrCodeRandomSourceUnavailable
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithCause creates an Error wrapping cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewPeerError creates an Error associated with a peer.
func NewPeerError(code ErrorCode, message string, peer identity.PublicKey, cause error) *Error {
	return &Error{Code: code, Message: message, Peer: peer, Cause: cause}
}

// wrapError classifies an error from the crypto, address book or daemon
// layers.
func wrapError(peer identity.PublicKey, err error) *Error {
	if err == nil {
		return nil
	}
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr
	}

	switch {
	case errors.Is(err, crypto.ErrInvalidPeerKey):
		return NewPeerError(ErrCodeInvalidPeerKey, "invalid peer key", peer, err)
	case errors.Is(err, crypto.ErrKeyAgreementFailure):
		return NewPeerError(ErrCodeKeyAgreementFailed, "key agreement failed", peer, err)
	case errors.Is(err, crypto.ErrMalformedEnvelope):
		return NewPeerError(ErrCodeMalformedEnvelope, "malformed envelope", peer, err)
	case errors.Is(err, crypto.ErrDecryptionFailure):
		return NewPeerError(ErrCodeDecryptionFailed, "decryption failed", peer, err)
	case errors.Is(err, crypto.ErrRandomSourceUnavailable):
		return NewPeerError(ErrCodeRandomSourceUnavailable, "random source unavailable", peer, err)
	case errors.Is(err, crypto.ErrChannelClosed):
		return NewPeerError(ErrCodeNodeNotStarted, "node stopped", peer, err)
	case errors.Is(err, addressbook.ErrPeerNotFound):
		return NewPeerError(ErrCodePeerNotFound, "peer not found", peer, err)
	case errors.Is(err, addressbook.ErrPeerBlacklisted):
		return NewPeerError(ErrCodePeerBlacklisted, "peer is blacklisted", peer, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e := NewPeerError(ErrCodeContextCanceled, "operation cancelled", peer, err)
		e.Retriable = true
		return e
	default:
		return NewPeerError(ErrCodeUnknown, "operation failed", peer, err)
	}
}

// Sentinel errors for configuration.
var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingKeyPair indicates no key pair was provided.
	ErrMissingKeyPair = errors.New("key pair is required")

	// ErrMissingAddressBookPath indicates no address book path was provided.
	ErrMissingAddressBookPath = errors.New("address book path is required")
)

// Sentinel errors for node operations.
var (
	// ErrNodeNotStarted indicates the node has not been started.
	ErrNodeNotStarted = NewError(ErrCodeNodeNotStarted, "node not started")

	// ErrNodeAlreadyStarted indicates the node is already running.
	ErrNodeAlreadyStarted = NewError(ErrCodeNodeAlreadyStarted, "node already started")
)
