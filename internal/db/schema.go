package db

import (
	"context"
	"fmt"
)

// schemaStatements are applied in order at startup. Each is idempotent so
// repeated starts against the same database are safe. One statement per
// entry; pgx's extended protocol rejects multi-statement strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		access_token  TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		token_expiry  TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at    TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`,

	`CREATE TABLE IF NOT EXISTS discoveries (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		seed_id     TEXT NOT NULL,
		seed_name   TEXT NOT NULL,
		artist_id   TEXT NOT NULL,
		artist_name TEXT NOT NULL,
		popularity  INTEGER NOT NULL,
		genres      TEXT[] NOT NULL DEFAULT '{}',
		image_url   TEXT,
		spotify_url TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, seed_id, artist_id)
	)`,

	`CREATE INDEX IF NOT EXISTS discoveries_user_created_idx ON discoveries (user_id, created_at DESC)`,
}

// InitSchema creates the tables and indexes if they do not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
