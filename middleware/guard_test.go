package middleware

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gearmarket/auth"
)

type memAccounts struct {
	mu     sync.Mutex
	byID   map[string]*auth.Account
	nextID int
}

func (m *memAccounts) Create(_ context.Context, input auth.CreateAccountInput) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	account := &auth.Account{
		ID:            "acct-" + strconv.Itoa(m.nextID),
		Email:         input.Email,
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		Active:        input.Active,
		EmailVerified: input.EmailVerified,
		CreatedAt:     time.Now(),
	}
	m.byID[account.ID] = account
	return account, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.Email == email {
			return account, nil
		}
	}
	return nil, auth.ErrAccountNotFound
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.byID[id]; ok {
		return account, nil
	}
	return nil, auth.ErrAccountNotFound
}

func (m *memAccounts) UpdatePasswordHash(context.Context, string, string) error { return nil }

func (m *memAccounts) Activate(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	account.Active = true
	account.EmailVerified = true
	return account, nil
}

func (m *memAccounts) TouchLogin(context.Context, string, time.Time) error { return nil }
func (m *memAccounts) Delete(context.Context, string) error                { return nil }

type nopMailer struct{}

func (nopMailer) Send(context.Context, string, string, string) error { return nil }

func newGuardEngine(t *testing.T) (*auth.Engine, *memAccounts, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := auth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	accounts := &memAccounts{byID: make(map[string]*auth.Account)}
	engine, err := auth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(nopMailer{}).
		WithLogger(log.New(io.Discard, "", 0)).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return engine, accounts, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func accessToken(t *testing.T, engine *auth.Engine, accounts *memAccounts) string {
	t.Helper()
	ctx := context.Background()

	if _, err := engine.Signup(ctx, auth.SignupRequest{Email: "user@example.com", Username: "user", Password: "Password1!"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	account, err := accounts.GetByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := accounts.Activate(ctx, account.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	pair, err := engine.Login(ctx, "user@example.com", "Password1!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair.AccessToken
}

func TestGuardAcceptsValidToken(t *testing.T) {
	engine, accounts, cleanup := newGuardEngine(t)
	defer cleanup()

	token := accessToken(t, engine, accounts)

	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if !ok {
			t.Fatal("identity missing from context")
		}
		if res.Email != "user@example.com" {
			t.Fatalf("email = %q", res.Email)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardRejectsMissingAndBogusTokens(t *testing.T) {
	engine, _, cleanup := newGuardEngine(t)
	defer cleanup()

	handler := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler reached without valid token")
	}))

	for _, header := range []string{"", "Bearer ", "Bearer bogus", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}
