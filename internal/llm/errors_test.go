package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsRateLimited(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantNil      bool
		wantCooldown string
	}{
		{
			name:    "nil error",
			err:     nil,
			wantNil: true,
		},
		{
			name:    "unrelated error",
			err:     errors.New("connection refused"),
			wantNil: true,
		},
		{
			name:         "429 with backoff hint",
			err:          errors.New("googleapi: Error 429: rate_limit_exceeded, please try again in 2m59.56s"),
			wantCooldown: "2m59.56s",
		},
		{
			name:         "429 without hint",
			err:          errors.New("rpc error: code = 429 quota exceeded"),
			wantCooldown: DefaultCooldown,
		},
		{
			name:         "resource exhausted status",
			err:          errors.New("rpc error: code = RESOURCE_EXHAUSTED desc = quota exhausted"),
			wantCooldown: DefaultCooldown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsRateLimited(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("AsRateLimited() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("AsRateLimited() = nil, want error")
			}
			if got.Cooldown != tt.wantCooldown {
				t.Errorf("Cooldown = %q, want %q", got.Cooldown, tt.wantCooldown)
			}
		})
	}
}

func TestAsRateLimited_PreservesWrapped(t *testing.T) {
	orig := &RateLimitedError{Cooldown: "1m30s"}
	wrapped := fmt.Errorf("parse statement: %w", orig)

	got := AsRateLimited(wrapped)
	if got != orig {
		t.Errorf("AsRateLimited() = %v, want the original error", got)
	}
}

func TestRateLimitedError_Unwrap(t *testing.T) {
	inner := errors.New("quota")
	err := &RateLimitedError{Cooldown: "1m", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
}
