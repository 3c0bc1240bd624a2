package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/gearmarket/auth"
)

type accountModel struct {
	bun.BaseModel `bun:"table:accounts"`

	ID            string     `bun:"id,pk"`
	Email         string     `bun:"email,notnull,unique"`
	Username      string     `bun:"username,notnull"`
	PasswordHash  string     `bun:"password_hash,notnull"`
	Active        bool       `bun:"active,notnull"`
	EmailVerified bool       `bun:"email_verified,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	LastLoginAt   *time.Time `bun:"last_login_at"`
}

// Accounts implements the engine's AccountStore contract on bun.
type Accounts struct {
	db *bun.DB
}

// NewAccounts creates an [Accounts] store over the given bun handle.
func NewAccounts(db *bun.DB) *Accounts {
	return &Accounts{db: db}
}

// Create inserts a new account. A taken email maps to ErrDuplicateEmail
// via the unique constraint.
func (s *Accounts) Create(ctx context.Context, input auth.CreateAccountInput) (*auth.Account, error) {
	model := &accountModel{
		ID:            uuid.NewString(),
		Email:         input.Email,
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		Active:        input.Active,
		EmailVerified: input.EmailVerified,
		CreatedAt:     time.Now().UTC(),
	}

	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, auth.ErrDuplicateEmail
		}
		return nil, err
	}

	return toAccount(model), nil
}

// GetByEmail fetches an account by its unique email.
func (s *Accounts) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	var model accountModel
	err := s.db.NewSelect().
		Model(&model).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&model), nil
}

// GetByID fetches an account by primary key.
func (s *Accounts) GetByID(ctx context.Context, id string) (*auth.Account, error) {
	var model accountModel
	err := s.db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&model), nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *Accounts) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.NewUpdate().
		Model((*accountModel)(nil)).
		Set("password_hash = ?", passwordHash).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Activate marks the account active and its email verified, and returns
// the updated account.
func (s *Accounts) Activate(ctx context.Context, id string) (*auth.Account, error) {
	res, err := s.db.NewUpdate().
		Model((*accountModel)(nil)).
		Set("active = ?", true).
		Set("email_verified = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// TouchLogin records the successful-login timestamp.
func (s *Accounts) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*accountModel)(nil)).
		Set("last_login_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes the account row. Used to compensate a failed signup.
func (s *Accounts) Delete(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().
		Model((*accountModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func toAccount(m *accountModel) *auth.Account {
	account := &auth.Account{
		ID:            m.ID,
		Email:         m.Email,
		Username:      m.Username,
		PasswordHash:  m.PasswordHash,
		Active:        m.Active,
		EmailVerified: m.EmailVerified,
		CreatedAt:     m.CreatedAt,
	}
	if m.LastLoginAt != nil {
		account.LastLoginAt = *m.LastLoginAt
	}
	return account
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
