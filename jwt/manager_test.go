package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func hs256Manager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "gearmarket",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateParseRoundTrip(t *testing.T) {
	m := hs256Manager(t, 15*time.Minute)

	token, err := m.CreateAccess("acct-1", "user@example.com", "user", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "acct-1" || claims.Email != "user@example.com" || claims.Username != "user" || !claims.EmailVerified {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "gearmarket" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	m := hs256Manager(t, 15*time.Minute)

	other, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("another-secret-another-secret-00"),
		Issuer:        "gearmarket",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := other.CreateAccess("acct-1", "user@example.com", "user", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := hs256Manager(t, time.Nanosecond)

	token, err := m.CreateAccess("acct-1", "user@example.com", "user", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m := hs256Manager(t, 15*time.Minute)

	for _, bad := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := m.ParseAccess(bad); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q err = %v, want ErrTokenInvalid", bad, err)
		}
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "gearmarket",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateAccess("acct-1", "user@example.com", "user", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
