package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create servers",
		sql: `
			CREATE TABLE IF NOT EXISTS servers (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL,
				source       TEXT NOT NULL,
				external_id  TEXT NOT NULL,
				description  TEXT NOT NULL DEFAULT '',
				category     TEXT NOT NULL DEFAULT '',
				tags         TEXT[] NOT NULL DEFAULT '{}',
				verified     BOOLEAN NOT NULL DEFAULT false,
				claimed_by   TEXT,
				publisher_id TEXT,
				trust_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
				revision     BIGINT NOT NULL DEFAULT 1,
				created_at   TIMESTAMPTZ NOT NULL,
				updated_at   TIMESTAMPTZ NOT NULL,
				value        JSONB NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS servers_name_key ON servers (name);
			CREATE UNIQUE INDEX IF NOT EXISTS servers_source_external_id_key ON servers (source, external_id);
			CREATE INDEX IF NOT EXISTS servers_category_idx ON servers (category);
			CREATE INDEX IF NOT EXISTS servers_tags_idx ON servers USING GIN (tags);
		`,
	},
	{
		version: 2,
		name:    "create publishers",
		sql: `
			CREATE TABLE IF NOT EXISTS publishers (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				verified   BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}

// migrationLockID serializes concurrent migrators across processes.
const migrationLockID = 727274147

// migrate applies pending migrations on a single connection.
func migrate(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := conn.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}
