package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("update listing: %w", NewConcurrentModificationError("l-1"))

	if !errors.Is(err, ErrConcurrentModification) {
		t.Error("errors.Is should match wrapped APIError by code")
	}
	if errors.Is(err, ErrInvalidTransition) {
		t.Error("errors.Is should not match a different code")
	}
	if errors.Is(errors.New("plain"), ErrConcurrentModification) {
		t.Error("plain error should not match APIError sentinel")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"direct", NewAlreadyBlockedError(), ErrCodeAlreadyBlocked},
		{"wrapped", fmt.Errorf("ctx: %w", NewMissingReasonError("flag")), ErrCodeMissingReason},
		{"plain", errors.New("db down"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewInvalidTransitionError_ExpiredMessage(t *testing.T) {
	err := NewInvalidTransitionError(StatusExpired, "approve")
	if err.Code != ErrCodeInvalidTransition {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInvalidTransition)
	}
	other := NewInvalidTransitionError(StatusVisible, "approve")
	if err.Message == other.Message {
		t.Error("EXPIRED should have a distinct terminal-state message")
	}
}
