package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

// PairingStore is a Postgres-backed store.PairingStore.
type PairingStore struct {
	pool *pgxpool.Pool
}

// NewPairingStore wraps a pgx pool as a pairing store.
func NewPairingStore(pool *pgxpool.Pool) *PairingStore {
	return &PairingStore{pool: pool}
}

// Upsert creates a pending pairing request, or returns the existing one with
// Created=false. The insert-or-nothing keeps the operation idempotent under
// concurrent inbound messages from the same sender.
func (s *PairingStore) Upsert(ctx context.Context, provider, id string, meta store.PairingMeta) (store.PairingRequest, error) {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO pairing_requests (provider, sender_id, code, name, chat_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider, sender_id) DO NOTHING`,
		provider, id, code, meta.Name, meta.ChatID)
	if err != nil {
		return store.PairingRequest{}, fmt.Errorf("upsert pairing request: %w", err)
	}

	req := store.PairingRequest{Provider: provider, ID: id, Created: tag.RowsAffected() > 0}
	err = s.pool.QueryRow(ctx,
		`SELECT code, created_at FROM pairing_requests WHERE provider = $1 AND sender_id = $2`,
		provider, id).Scan(&req.Code, &req.CreatedAt)
	if err != nil {
		return store.PairingRequest{}, fmt.Errorf("read pairing request: %w", err)
	}
	return req, nil
}

// List returns all pending requests for a provider, oldest first.
func (s *PairingStore) List(ctx context.Context, provider string) ([]store.PairingRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sender_id, code, created_at FROM pairing_requests
		 WHERE provider = $1 ORDER BY created_at`,
		provider)
	if err != nil {
		return nil, fmt.Errorf("list pairing requests: %w", err)
	}
	defer rows.Close()

	var out []store.PairingRequest
	for rows.Next() {
		req := store.PairingRequest{Provider: provider}
		var created time.Time
		if err := rows.Scan(&req.ID, &req.Code, &created); err != nil {
			return nil, fmt.Errorf("scan pairing request: %w", err)
		}
		req.CreatedAt = created
		out = append(out, req)
	}
	return out, rows.Err()
}

// Approve resolves a pending request by code and returns the sender id.
func (s *PairingStore) Approve(ctx context.Context, provider, code string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`DELETE FROM pairing_requests WHERE provider = $1 AND code = $2 RETURNING sender_id`,
		provider, strings.ToUpper(strings.TrimSpace(code))).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("no pending pairing request with code %s: %w", code, err)
	}
	return id, nil
}

// Delete removes a pending request without approving it.
func (s *PairingStore) Delete(ctx context.Context, provider, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pairing_requests WHERE provider = $1 AND sender_id = $2`, provider, id)
	if err != nil {
		return fmt.Errorf("delete pairing request: %w", err)
	}
	return nil
}
