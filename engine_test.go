package auth

import (
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memAccounts struct {
	mu     sync.Mutex
	byID   map[string]*Account
	nextID int

	createErr error
	touchErr  error
	deleted   []string
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[string]*Account)}
}

func (m *memAccounts) Create(_ context.Context, input CreateAccountInput) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, existing := range m.byID {
		if existing.Email == input.Email {
			return nil, ErrDuplicateEmail
		}
	}
	m.nextID++
	account := &Account{
		ID:            "acct-" + strconv.Itoa(m.nextID),
		Email:         input.Email,
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		Active:        input.Active,
		EmailVerified: input.EmailVerified,
		CreatedAt:     time.Now(),
	}
	m.byID[account.ID] = account
	cp := *account
	return &cp, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.byID {
		if account.Email == email {
			cp := *account
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *account
	return &cp, nil
}

func (m *memAccounts) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

func (m *memAccounts) Activate(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	account.Active = true
	account.EmailVerified = true
	cp := *account
	return &cp, nil
}

func (m *memAccounts) TouchLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	account, ok := m.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.LastLoginAt = at
	return nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type sentMail struct {
	Recipient string
	Subject   string
	Body      string
}

type memMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

func (m *memMailer) Send(_ context.Context, recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMail{Recipient: recipient, Subject: subject, Body: body})
	return nil
}

func (m *memMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return m.sent[len(m.sent)-1]
}

type fakeProvider struct {
	identity Identity
	err      error
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (p *fakeProvider) Exchange(context.Context, string) (Identity, error) {
	if p.err != nil {
		return Identity{}, p.err
	}
	return p.identity, nil
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	// Fast argon2 parameters keep the tests snappy.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	// Generous budgets so unrelated tests never trip the limiter.
	cfg.RateLimit.Rules = map[string]RateRule{
		RouteLogin:         {Limit: 1000, Window: time.Minute},
		RouteSignup:        {Limit: 1000, Window: time.Hour},
		RoutePasswordReset: {Limit: 1000, Window: time.Hour},
	}
	cfg.Metrics.Enabled = true
	return cfg
}

type engineFixture struct {
	engine   *Engine
	accounts *memAccounts
	mailer   *memMailer
	provider *fakeProvider
	redis    *miniredis.Miniredis
}

func buildTestEngine(t *testing.T, cfg Config) (*engineFixture, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	accounts := newMemAccounts()
	mailer := &memMailer{}
	provider := &fakeProvider{identity: Identity{Email: "ext@example.com", DisplayName: "Ext User"}}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mailer).
		WithIdentityProvider(provider).
		WithLogger(log.New(io.Discard, "", 0)).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	fixture := &engineFixture{
		engine:   engine,
		accounts: accounts,
		mailer:   mailer,
		provider: provider,
		redis:    mr,
	}
	return fixture, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

// signupActive provisions a verified, active account ready for login.
func (f *engineFixture) signupActive(t *testing.T, email, pass string) *Account {
	t.Helper()
	ctx := context.Background()

	if _, err := f.engine.Signup(ctx, SignupRequest{Email: email, Username: "user", Password: pass}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	account, err := f.accounts.GetByEmail(ctx, email)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := f.accounts.Activate(ctx, account.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	account, err = f.accounts.GetByEmail(ctx, email)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return account
}

func errIs(t *testing.T, err, want error, op string) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("%s: err = %v, want %v", op, err, want)
	}
}
