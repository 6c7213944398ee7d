// Package store defines the storage interfaces consumed by the inbound
// pipeline. Standalone mode uses JSON-file stores (store/file) plus a sqlite
// notification queue (store/sqlite); managed mode swaps pairing/allowlist for
// Postgres (store/pg).
package store

import (
	"context"
	"time"
)

// PairingMeta is the metadata recorded with a pairing request.
type PairingMeta struct {
	Name   string `json:"name,omitempty"`    // sender display name, if known
	ChatID string `json:"chat_id,omitempty"` // where the request originated
}

// PairingRequest is the result of an idempotent pairing upsert.
// Created is false when a request for the same id was already pending —
// callers must not re-send the code in that case.
type PairingRequest struct {
	Provider  string    `json:"provider"`
	ID        string    `json:"id"` // canonical sender key ("uuid:<u>" or E.164)
	Code      string    `json:"code"`
	Created   bool      `json:"created"`
	CreatedAt time.Time `json:"created_at"`
}

// PairingStore manages pending pairing requests.
type PairingStore interface {
	// Upsert creates a pending pairing request for (provider, id), or returns
	// the existing one with Created=false. Idempotent.
	Upsert(ctx context.Context, provider, id string, meta PairingMeta) (PairingRequest, error)
	// List returns all pending requests for a provider.
	List(ctx context.Context, provider string) ([]PairingRequest, error)
	// Approve resolves a pending request by code and returns the sender id.
	Approve(ctx context.Context, provider, code string) (string, error)
	// Delete removes a pending request without approving it.
	Delete(ctx context.Context, provider, id string) error
}

// AllowlistStore holds persisted sender allow-lists. Reads are read-through
// (no caching) so concurrent external mutation is picked up per event.
type AllowlistStore interface {
	Read(ctx context.Context, provider string) ([]string, error)
	Add(ctx context.Context, provider, entry string) error
	Remove(ctx context.Context, provider, entry string) error
}

// NotificationOptions scope a notification to a session and dedup key.
type NotificationOptions struct {
	SessionKey string
	ContextKey string
}

// Notification is a queued system notification for a session.
type Notification struct {
	SessionKey string    `json:"session_key"`
	ContextKey string    `json:"context_key"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationQueue is an idempotent, session-scoped notification sink.
// Enqueue returns false when a notification with the same (session, context)
// key was already recorded; the queue, not the caller, is the authority on
// suppressing repeats.
type NotificationQueue interface {
	Enqueue(ctx context.Context, body string, opts NotificationOptions) (bool, error)
	// Drain returns undelivered notifications for a session and marks them delivered.
	Drain(ctx context.Context, sessionKey string) ([]Notification, error)
	Close() error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Pairing       PairingStore
	Allowlist     AllowlistStore
	Notifications NotificationQueue
}
