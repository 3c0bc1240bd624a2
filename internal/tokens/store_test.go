package tokens

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gearmarket/auth/internal"
)

func newTokenStoreTest(t *testing.T, durable Durable) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, durable, false, nil)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

type memDurable struct {
	mu   sync.Mutex
	recs map[internal.TokenID]*ArchiveRecord

	insertErr error
	markErr   error
}

func newMemDurable() *memDurable {
	return &memDurable{recs: make(map[internal.TokenID]*ArchiveRecord)}
}

func (d *memDurable) Insert(_ context.Context, rec *ArchiveRecord) error {
	if d.insertErr != nil {
		return d.insertErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *rec
	d.recs[rec.ID] = &cp
	return nil
}

func (d *memDurable) Get(_ context.Context, id internal.TokenID) (*ArchiveRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (d *memDurable) MarkConsumed(_ context.Context, id internal.TokenID, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.markErr != nil {
		err := d.markErr
		d.markErr = nil
		return false, err
	}
	rec, ok := d.recs[id]
	if !ok {
		return true, nil
	}
	if rec.ConsumedAt != nil {
		return false, nil
	}
	rec.ConsumedAt = &at
	return true, nil
}

func (d *memDurable) Delete(_ context.Context, id internal.TokenID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recs, id)
	return nil
}

func TestIssueResolveConsume(t *testing.T) {
	store, _, cleanup := newTokenStoreTest(t, nil)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposeEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("token length = %d, want 64", len(token))
	}

	resolved, err := store.Resolve(ctx, token, PurposeEmailVerification)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.AccountID != "acct-1" {
		t.Fatalf("account = %q", resolved.AccountID)
	}

	// Resolve does not spend the token.
	if _, err := store.Resolve(ctx, token, PurposeEmailVerification); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	consumed, err := store.Consume(ctx, token, PurposeEmailVerification)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.AccountID != "acct-1" {
		t.Fatalf("consumed account = %q", consumed.AccountID)
	}

	if _, err := store.Consume(ctx, token, PurposeEmailVerification); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume err = %v, want ErrNotFound", err)
	}
}

func TestConsumePurposeMismatch(t *testing.T) {
	store, _, cleanup := newTokenStoreTest(t, nil)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposePasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := store.Consume(ctx, token, PurposeEmailVerification); !errors.Is(err, ErrPurposeMismatch) {
		t.Fatalf("err = %v, want ErrPurposeMismatch", err)
	}

	// The mismatch must not have spent the token.
	if _, err := store.Consume(ctx, token, PurposePasswordReset); err != nil {
		t.Fatalf("consume after mismatch: %v", err)
	}
}

func TestConsumeTamperedSecret(t *testing.T) {
	store, _, cleanup := newTokenStoreTest(t, nil)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposeEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := []byte(token)
	if tampered[40] == 'A' {
		tampered[40] = 'B'
	} else {
		tampered[40] = 'A'
	}

	if _, err := store.Consume(ctx, string(tampered), PurposeEmailVerification); !errors.Is(err, ErrSecretMismatch) {
		t.Fatalf("err = %v, want ErrSecretMismatch", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	store, _, cleanup := newTokenStoreTest(t, nil)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposeEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(time.Hour + time.Minute) }

	if _, err := store.Consume(ctx, token, PurposeEmailVerification); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentConsumeExactlyOnce(t *testing.T) {
	store, _, cleanup := newTokenStoreTest(t, newMemDurable())
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposePasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const racers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, token, PurposePasswordReset); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
}

func TestConsumeFailsClosedWhenArchiveMarkErrors(t *testing.T) {
	durable := newMemDurable()
	store, mr, cleanup := newTokenStoreTest(t, durable)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposeEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	durable.markErr = errors.New("archive briefly unreachable")

	if _, err := store.Consume(ctx, token, PurposeEmailVerification); !errors.Is(err, ErrDurableUnavailable) {
		t.Fatalf("err = %v, want ErrDurableUnavailable", err)
	}

	// A wiped cache must not turn the failed spend into a second one.
	mr.FlushAll()
	successes := 0
	for i := 0; i < 2; i++ {
		if _, err := store.Consume(ctx, token, PurposeEmailVerification); err == nil {
			successes++
		}
	}
	if successes > 1 {
		t.Fatalf("successes = %d, want at most 1", successes)
	}
}

func TestResolveTTLBoundary(t *testing.T) {
	durable := newMemDurable()
	store, mr, cleanup := newTokenStoreTest(t, durable)
	defer cleanup()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	token, err := store.Issue(ctx, "acct-1", PurposePasswordReset, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	store.now = func() time.Time { return base.Add(59 * time.Minute) }
	if _, err := store.Resolve(ctx, token, PurposePasswordReset); err != nil {
		t.Fatalf("resolve at 59m: %v", err)
	}

	// The expiry instant itself still counts as valid, on the cache and
	// archive paths alike.
	store.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := store.Resolve(ctx, token, PurposePasswordReset); err != nil {
		t.Fatalf("resolve at expiry instant: %v", err)
	}
	mr.FlushAll()
	if _, err := store.Resolve(ctx, token, PurposePasswordReset); err != nil {
		t.Fatalf("archive resolve at expiry instant: %v", err)
	}

	store.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if _, err := store.Resolve(ctx, token, PurposePasswordReset); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDurableFallbackAfterCacheFlush(t *testing.T) {
	durable := newMemDurable()
	store, mr, cleanup := newTokenStoreTest(t, durable)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposeEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mr.FlushAll()

	resolved, err := store.Consume(ctx, token, PurposeEmailVerification)
	if err != nil {
		t.Fatalf("consume from archive: %v", err)
	}
	if resolved.AccountID != "acct-1" {
		t.Fatalf("account = %q", resolved.AccountID)
	}

	if _, err := store.Consume(ctx, token, PurposeEmailVerification); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("err = %v, want ErrAlreadyConsumed", err)
	}
}

func TestIssueAbortsWhenArchiveRequired(t *testing.T) {
	durable := newMemDurable()
	durable.insertErr = errors.New("disk on fire")
	store, mr, cleanup := newTokenStoreTest(t, durable)
	defer cleanup()
	store.requireDurable = true

	if _, err := store.Issue(context.Background(), "acct-1", PurposeEmailVerification, time.Hour); !errors.Is(err, ErrDurableUnavailable) {
		t.Fatalf("err = %v, want ErrDurableUnavailable", err)
	}

	if got := len(mr.Keys()); got != 0 {
		t.Fatalf("redis keys after aborted issue = %d, want 0", got)
	}
}

func TestRemoveDiscardsToken(t *testing.T) {
	durable := newMemDurable()
	store, _, cleanup := newTokenStoreTest(t, durable)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Issue(ctx, "acct-1", PurposeEmailVerification, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := store.Remove(ctx, token); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := store.Consume(ctx, token, PurposeEmailVerification); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
