package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService(t *testing.T) {
	if _, err := NewTokenService("short", 0); err == nil {
		t.Error("NewTokenService() should reject secrets shorter than 16 chars")
	}

	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
	if ts.TTL() != DefaultTokenTTL {
		t.Errorf("TTL() = %v, want default %v", ts.TTL(), DefaultTokenTTL)
	}
}

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("ann_example_com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if n := strings.Count(token, "."); n != 2 {
		t.Errorf("Generate() token has %d dots, want 2", n)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("ann_example_com")
	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "ann_example_com" {
		t.Errorf("Validate() = %q, want %q", got, "ann_example_com")
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	expired, _ := ts.GenerateWithDuration("u", -time.Second)
	good, _ := ts.Generate("u")
	foreign, _ := other.Generate("u")
	noSubject, _ := ts.Generate("")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"signed with another secret", foreign},
		{"empty subject", noSubject},
		{"empty string", ""},
		{"garbage", "not.a.jwt.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(tt.token); err == nil {
				t.Errorf("Validate() accepted a %s token", tt.name)
			}
		})
	}
}
