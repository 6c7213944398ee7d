package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AllowlistStore is a Postgres-backed store.AllowlistStore.
// Reads hit the database every call (read-through, no caching).
type AllowlistStore struct {
	pool *pgxpool.Pool
}

// NewAllowlistStore wraps a pgx pool as an allowlist store.
func NewAllowlistStore(pool *pgxpool.Pool) *AllowlistStore {
	return &AllowlistStore{pool: pool}
}

// Read returns the persisted allow-list for a provider.
func (s *AllowlistStore) Read(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry FROM allowlist_entries WHERE provider = $1 ORDER BY entry`, provider)
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Add inserts an entry if not already present.
func (s *AllowlistStore) Add(ctx context.Context, provider, entry string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO allowlist_entries (provider, entry) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		provider, entry)
	if err != nil {
		return fmt.Errorf("add allowlist entry: %w", err)
	}
	return nil
}

// Remove deletes an entry.
func (s *AllowlistStore) Remove(ctx context.Context, provider, entry string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM allowlist_entries WHERE provider = $1 AND entry = $2`, provider, entry)
	if err != nil {
		return fmt.Errorf("remove allowlist entry: %w", err)
	}
	return nil
}
