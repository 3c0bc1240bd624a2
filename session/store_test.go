package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "ars")
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(hash [32]byte) *Session {
	now := time.Now()
	return &Session{
		ID:            "sid-1",
		AccountID:     "acct-1",
		Email:         "user@example.com",
		Username:      "user",
		EmailVerified: true,
		RefreshHash:   hash,
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(7 * 24 * time.Hour).Unix(),
	}
}

func hashOf(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sess := testSession(hashOf("secret-1"))

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded.ID = sess.ID

	if decoded.AccountID != sess.AccountID ||
		decoded.Email != sess.Email ||
		decoded.Username != sess.Username ||
		decoded.EmailVerified != sess.EmailVerified ||
		!bytes.Equal(decoded.RefreshHash[:], sess.RefreshHash[:]) ||
		decoded.CreatedAt != sess.CreatedAt ||
		decoded.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, sess)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	data, err := Encode(testSession(hashOf("secret-1")))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[0] = 99

	if _, err := Decode(data); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRotateSwapsHash(t *testing.T) {
	store, _, cleanup := newSessionStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	first := hashOf("secret-1")
	second := hashOf("secret-2")

	if err := store.Save(ctx, testSession(first)); err != nil {
		t.Fatalf("save: %v", err)
	}

	rotated, err := store.Rotate(ctx, "sid-1", first, second)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !bytes.Equal(rotated.RefreshHash[:], second[:]) {
		t.Fatal("hash not swapped")
	}
	if rotated.AccountID != "acct-1" {
		t.Fatalf("account = %q", rotated.AccountID)
	}

	// The new hash rotates cleanly again.
	third := hashOf("secret-3")
	if _, err := store.Rotate(ctx, "sid-1", second, third); err != nil {
		t.Fatalf("second rotate: %v", err)
	}
}

func TestRotatedTokenReuseRevokesSession(t *testing.T) {
	store, _, cleanup := newSessionStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	first := hashOf("secret-1")
	second := hashOf("secret-2")

	if err := store.Save(ctx, testSession(first)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Rotate(ctx, "sid-1", first, second); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// Replaying the predecessor is reuse.
	if _, err := store.Rotate(ctx, "sid-1", first, hashOf("secret-x")); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked", err)
	}

	// The whole lineage is dead, including the current token.
	if _, err := store.Rotate(ctx, "sid-1", second, hashOf("secret-y")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRotateUnknownSession(t *testing.T) {
	store, _, cleanup := newSessionStoreTest(t)
	defer cleanup()

	if _, err := store.Rotate(context.Background(), "missing", hashOf("a"), hashOf("b")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRotateExpiredSession(t *testing.T) {
	store, _, cleanup := newSessionStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	first := hashOf("secret-1")
	if err := store.Save(ctx, testSession(first)); err != nil {
		t.Fatalf("save: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	if _, err := store.Rotate(ctx, "sid-1", first, hashOf("secret-2")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, _, cleanup := newSessionStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	first := hashOf("secret-1")
	if err := store.Save(ctx, testSession(first)); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.Revoke(ctx, "sid-1", first); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := store.Revoke(ctx, "sid-1", first); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	// A revoked token cannot refresh.
	if _, err := store.Rotate(ctx, "sid-1", first, hashOf("secret-2")); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked", err)
	}
}

func TestStaleTokenCannotRevoke(t *testing.T) {
	store, _, cleanup := newSessionStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	first := hashOf("secret-1")
	second := hashOf("secret-2")

	if err := store.Save(ctx, testSession(first)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Rotate(ctx, "sid-1", first, second); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if err := store.Revoke(ctx, "sid-1", first); err != nil {
		t.Fatalf("stale revoke: %v", err)
	}

	// The live lineage survives a stale revoke attempt.
	if _, err := store.Rotate(ctx, "sid-1", second, hashOf("secret-3")); err != nil {
		t.Fatalf("rotate after stale revoke: %v", err)
	}
}
