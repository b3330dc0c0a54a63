package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE mixer_status AS ENUM ('running', 'closed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS mixers (
		id TEXT PRIMARY KEY,
		router_id TEXT NOT NULL,
		status mixer_status NOT NULL DEFAULT 'running',
		created_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mixers_running ON mixers (router_id) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS mixer_producers (
		producer_id TEXT NOT NULL,
		mixer_id TEXT NOT NULL REFERENCES mixers(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		type TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		admitted_at TIMESTAMPTZ NOT NULL,
		released_at TIMESTAMPTZ,
		PRIMARY KEY (mixer_id, producer_id)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
