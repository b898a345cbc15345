package idempotency

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"empty", "", ErrInvalidKey},
		{"short", "retry-1", nil},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", nil},
		{"at max length", strings.Repeat("k", MaxKeyLength), nil},
		{"over max length", strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateKey(tt.key); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestComputeResponseHash(t *testing.T) {
	empty := ComputeResponseHash("")
	if empty != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("hash of empty body = %s", empty)
	}

	a := ComputeResponseHash(`{"id":"torre-a"}`)
	b := ComputeResponseHash(`{"id":"torre-b"}`)
	if len(a) != 64 || a == b {
		t.Errorf("hashes not distinct 64-char hex: %s %s", a, b)
	}
	if a != ComputeResponseHash(`{"id":"torre-a"}`) {
		t.Error("hash is not deterministic")
	}
}
