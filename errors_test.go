package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sispop-dev/storage/pkg/addressbook"
	"github.com/sispop-dev/storage/pkg/crypto"
	"github.com/sispop-dev/storage/pkg/identity"
)

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeUnknown, "Unknown"},
		{ErrCodeInvalidPeerKey, "InvalidPeerKey"},
		{ErrCodeDecryptionFailed, "DecryptionFailed"},
		{ErrCodeRandomSourceUnavailable, "RandomSourceUnavailable"},
		{ErrorCode(999), "ErrorCode(999)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ErrorCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewErrorWithCause(ErrCodeReportFailed, "report failed", cause)

	if !strings.HasPrefix(err.Error(), "storage: report failed") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !strings.Contains(err.Error(), "root cause") {
		t.Errorf("Error() should include the cause: %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if got := NewError(ErrCodeInvalidConfig, "bad").Error(); got != "storage: bad" {
		t.Errorf("Error() without cause = %q", got)
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("starting: %w", NewError(ErrCodeNodeAlreadyStarted, "again"))
	if !errors.Is(err, ErrNodeAlreadyStarted) {
		t.Error("errors.Is should match an *Error with the same code")
	}
	if errors.Is(err, ErrNodeNotStarted) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestError_PublicMessageHidesCause(t *testing.T) {
	err := wrapError(identity.PublicKey{}, fmt.Errorf("%w: bad padding byte 0x11", crypto.ErrDecryptionFailure))
	if err.PublicMessage() != "decryption failed" {
		t.Errorf("PublicMessage() = %q", err.PublicMessage())
	}
}

func TestWrapError_Classification(t *testing.T) {
	peer := identity.PublicKey{1}
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		permanent bool
		retriable bool
	}{
		{"invalid key", crypto.ErrInvalidPeerKey, ErrCodeInvalidPeerKey, true, false},
		{"agreement", crypto.ErrKeyAgreementFailure, ErrCodeKeyAgreementFailed, true, false},
		{"malformed", crypto.ErrMalformedEnvelope, ErrCodeMalformedEnvelope, true, false},
		{"decrypt", crypto.ErrDecryptionFailure, ErrCodeDecryptionFailed, true, false},
		{"random", crypto.ErrRandomSourceUnavailable, ErrCodeRandomSourceUnavailable, true, false},
		{"not found", addressbook.ErrPeerNotFound, ErrCodePeerNotFound, false, false},
		{"blacklisted", addressbook.ErrPeerBlacklisted, ErrCodePeerBlacklisted, true, false},
		{"canceled", context.Canceled, ErrCodeContextCanceled, false, true},
		{"deadline", context.DeadlineExceeded, ErrCodeContextCanceled, false, true},
		{"other", errors.New("boom"), ErrCodeUnknown, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError(peer, fmt.Errorf("op: %w", tt.err))
			if err.Code != tt.code {
				t.Errorf("Code = %v, want %v", err.Code, tt.code)
			}
			if err.Peer != peer {
				t.Error("Peer not recorded")
			}
			if IsPermanent(err) != tt.permanent {
				t.Errorf("IsPermanent() = %v, want %v", IsPermanent(err), tt.permanent)
			}
			if IsRetriable(err) != tt.retriable {
				t.Errorf("IsRetriable() = %v, want %v", IsRetriable(err), tt.retriable)
			}
			if !errors.Is(err, tt.err) {
				t.Error("wrapped error should unwrap to the original")
			}
		})
	}
}

func TestWrapError_NilAndPassthrough(t *testing.T) {
	if wrapError(identity.PublicKey{}, nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
	orig := NewError(ErrCodeReportFailed, "x")
	if wrapError(identity.PublicKey{}, orig) != orig {
		t.Error("an existing *Error should pass through")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(wrapError(identity.PublicKey{}, crypto.ErrRandomSourceUnavailable)) {
		t.Error("random source failure should be fatal")
	}
	if IsFatal(wrapError(identity.PublicKey{}, crypto.ErrDecryptionFailure)) {
		t.Error("decryption failure should not be fatal")
	}
	if CodeOf(errors.New("plain")) != ErrCodeUnknown {
		t.Error("CodeOf a plain error should be unknown")
	}
}
