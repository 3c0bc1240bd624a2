package store

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateTables creates the accounts and verification_tokens tables when
// they do not exist yet. Intended for service startup and tests; schema
// evolution beyond that belongs to real migrations.
func CreateTables(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*accountModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	if _, err := db.NewCreateTable().
		Model((*tokenModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	return nil
}
