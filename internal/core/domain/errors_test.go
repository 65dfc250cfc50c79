package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrSyncInProgress", ErrSyncInProgress, "sync already in progress"},
		{"ErrSourceHalted", ErrSourceHalted, "source halted"},
		{"ErrSourceDisabled", ErrSourceDisabled, "source disabled"},
		{"ErrUnsupportedKind", ErrUnsupportedKind, "unsupported source kind"},
		{"ErrRateLimited", ErrRateLimited, "rate limited"},
		{"ErrTransient", ErrTransient, "transient failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", fmt.Errorf("fetch: %w", ErrTransient), true},
		{"rate limited", fmt.Errorf("upload: %w", ErrRateLimited), true},
		{"unavailable", ErrServiceUnavailable, true},
		{"invalid input", ErrInvalidInput, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
