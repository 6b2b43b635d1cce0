package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Migrate applies schema.sql once, recording its hash in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	hash       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (name, hash)
)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(schema)))
	var applied bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1 AND hash = $2)`,
		"schema.sql", hash,
	).Scan(&applied)
	if err != nil {
		return fmt.Errorf("check migration: %w", err)
	}
	if applied {
		return nil
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO schema_migrations (name, hash) VALUES ($1, $2)`, "schema.sql", hash)
	return err
}
