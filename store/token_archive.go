package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/gearmarket/auth/internal"
	"github.com/gearmarket/auth/internal/tokens"
)

type tokenModel struct {
	bun.BaseModel `bun:"table:verification_tokens"`

	ID         string     `bun:"id,pk"`
	AccountID  string     `bun:"account_id,notnull"`
	Purpose    uint8      `bun:"purpose,notnull"`
	SecretHash []byte     `bun:"secret_hash,notnull"`
	IssuedAt   time.Time  `bun:"issued_at,notnull"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull"`
	ConsumedAt *time.Time `bun:"consumed_at"`
}

// TokenArchive implements the token service's Durable contract: it keeps
// issued tokens and their consumption state past any redis flush.
type TokenArchive struct {
	db *bun.DB
}

// NewTokenArchive creates a [TokenArchive] over the given bun handle.
func NewTokenArchive(db *bun.DB) *TokenArchive {
	return &TokenArchive{db: db}
}

// Insert archives a freshly issued token.
func (a *TokenArchive) Insert(ctx context.Context, rec *tokens.ArchiveRecord) error {
	model := &tokenModel{
		ID:         rec.ID.String(),
		AccountID:  rec.AccountID,
		Purpose:    uint8(rec.Purpose),
		SecretHash: rec.SecretHash[:],
		IssuedAt:   rec.IssuedAt.UTC(),
		ExpiresAt:  rec.ExpiresAt.UTC(),
	}
	_, err := a.db.NewInsert().Model(model).Exec(ctx)
	return err
}

// Get returns the archived token, or nil when it was never archived.
func (a *TokenArchive) Get(ctx context.Context, id internal.TokenID) (*tokens.ArchiveRecord, error) {
	var model tokenModel
	err := a.db.NewSelect().
		Model(&model).
		Where("id = ?", id.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec := &tokens.ArchiveRecord{
		AccountID:  model.AccountID,
		Purpose:    tokens.Purpose(model.Purpose),
		IssuedAt:   model.IssuedAt,
		ExpiresAt:  model.ExpiresAt,
		ConsumedAt: model.ConsumedAt,
	}
	parsed, err := internal.ParseTokenID(model.ID)
	if err != nil {
		return nil, err
	}
	rec.ID = parsed
	copy(rec.SecretHash[:], model.SecretHash)

	return rec, nil
}

// MarkConsumed performs the conditional consumed_at transition. It
// reports false only when the row exists and was already consumed, so
// the token service can use it as a compare-and-set arbiter.
func (a *TokenArchive) MarkConsumed(ctx context.Context, id internal.TokenID, at time.Time) (bool, error) {
	res, err := a.db.NewUpdate().
		Model((*tokenModel)(nil)).
		Set("consumed_at = ?", at.UTC()).
		Where("id = ? AND consumed_at IS NULL", id.String()).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	exists, err := a.db.NewSelect().
		Model((*tokenModel)(nil)).
		Where("id = ?", id.String()).
		Exists(ctx)
	if err != nil {
		return false, err
	}

	// Missing row: nothing to contend with, the caller's redis
	// transaction already decided the race.
	return !exists, nil
}

// Delete discards an archived token.
func (a *TokenArchive) Delete(ctx context.Context, id internal.TokenID) error {
	_, err := a.db.NewDelete().
		Model((*tokenModel)(nil)).
		Where("id = ?", id.String()).
		Exec(ctx)
	return err
}
