package auth

import (
	"errors"
	"testing"
	"time"
)

func TestOpsAuthenticator(t *testing.T) {
	hash, err := HashToken("super-secret-ops-token")
	if err != nil {
		t.Fatalf("HashToken failed: %v", err)
	}
	a := NewOpsAuthenticator(hash)

	if err := a.Verify("super-secret-ops-token"); err != nil {
		t.Errorf("Verify rejected the right token: %v", err)
	}
	if err := a.Verify("wrong-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	if err := a.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("err = %v, want ErrMissingToken", err)
	}
}

func TestHashToken_RejectsShortTokens(t *testing.T) {
	if _, err := HashToken("short"); err == nil {
		t.Error("expected error for short token")
	}
}

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret-key-32-bytes-long!!!", time.Hour)

	token, err := m.Generate("dashboard")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Subject != "dashboard" {
		t.Errorf("subject = %q, want dashboard", claims.Subject)
	}
	if claims.Scope != ScopeDashboard {
		t.Errorf("scope = %q, want %q", claims.Scope, ScopeDashboard)
	}

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := m.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("rejects other secret", func(t *testing.T) {
		other := NewJWTManager("another-secret-key-32-bytes-long", time.Hour)
		forged, err := other.Generate("dashboard")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(forged); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("rejects expired", func(t *testing.T) {
		expired := NewJWTManager("test-secret-key-32-bytes-long!!!", -time.Minute)
		token, err := expired.Generate("dashboard")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("err = %v, want ErrInvalidToken", err)
		}
	})
}
