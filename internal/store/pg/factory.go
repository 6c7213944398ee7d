// Package pg provides Postgres-backed pairing and allowlist stores for
// managed mode. Standalone deployments use the file stores instead.
package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS pairing_requests (
	provider   TEXT        NOT NULL,
	sender_id  TEXT        NOT NULL,
	code       TEXT        NOT NULL,
	name       TEXT        NOT NULL DEFAULT '',
	chat_id    TEXT        NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (provider, sender_id)
);
CREATE TABLE IF NOT EXISTS allowlist_entries (
	provider TEXT NOT NULL,
	entry    TEXT NOT NULL,
	PRIMARY KEY (provider, entry)
);
`

// NewPool connects to Postgres and ensures the schema exists.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return pool, nil
}
