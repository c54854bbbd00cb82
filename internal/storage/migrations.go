package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username      TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			password_hash BYTEA NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),

			CONSTRAINT uq_users_username UNIQUE (username)
		);
	`},
	{"uploads", `
		CREATE TABLE IF NOT EXISTS uploads (
			id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner_id     UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			file_name    TEXT NOT NULL,
			file_path    TEXT NOT NULL DEFAULT '',
			file_size    BIGINT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			headers      JSONB NOT NULL DEFAULT '[]',
			data_rows    JSONB NOT NULL DEFAULT '[]',
			row_count    INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processed', 'failed')),
			upload_date  TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_date
			ON uploads (upload_date DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_uploads_owner
			ON uploads (owner_id, upload_date DESC);

		CREATE INDEX IF NOT EXISTS idx_uploads_status
			ON uploads (status);
	`},
	{"plugins", `
		CREATE TABLE IF NOT EXISTS plugins (
			id                UUID PRIMARY KEY,
			name              TEXT NOT NULL,
			endpoint          TEXT NOT NULL,
			subscribed_events TEXT[] NOT NULL,
			status            TEXT NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),

			CONSTRAINT uq_plugins_name UNIQUE (name)
		);
	`},
}

// RunMigrations creates every table the service needs. Safe to run repeatedly.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.ddl); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}
	return nil
}
