// Package sqlite provides the sqlite-backed notification queue.
//
// The queue is the authority on duplicate suppression: a notification is
// keyed by (session_key, context_key) and re-delivery of the same provider
// event inserts at most once.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	session_key TEXT    NOT NULL,
	context_key TEXT    NOT NULL,
	body        TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	delivered   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_key, context_key)
);
CREATE INDEX IF NOT EXISTS idx_notifications_pending
	ON notifications (session_key, delivered);
`

// NotificationQueue is a sqlite-backed store.NotificationQueue.
type NotificationQueue struct {
	db *sql.DB
}

// OpenNotificationQueue opens (creating if needed) the queue database at path.
func OpenNotificationQueue(path string) (*NotificationQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create notification db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open notification db: %w", err)
	}
	// Single writer: the pipeline enqueues, the reply consumer drains.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init notification schema: %w", err)
	}
	return &NotificationQueue{db: db}, nil
}

// Enqueue inserts a notification unless one with the same (session, context)
// key exists. Returns true when the notification was newly recorded.
func (q *NotificationQueue) Enqueue(ctx context.Context, body string, opts store.NotificationOptions) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications (session_key, context_key, body, created_at) VALUES (?, ?, ?, ?)`,
		opts.SessionKey, opts.ContextKey, body, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	return n > 0, nil
}

// Drain returns undelivered notifications for a session, oldest first,
// and marks them delivered.
func (q *NotificationQueue) Drain(ctx context.Context, sessionKey string) ([]store.Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT context_key, body, created_at FROM notifications
		 WHERE session_key = ? AND delivered = 0 ORDER BY created_at`,
		sessionKey)
	if err != nil {
		return nil, fmt.Errorf("drain notifications: %w", err)
	}
	defer rows.Close()

	var out []store.Notification
	for rows.Next() {
		var n store.Notification
		var created int64
		if err := rows.Scan(&n.ContextKey, &n.Body, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.SessionKey = sessionKey
		n.CreatedAt = time.UnixMilli(created)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drain notifications: %w", err)
	}

	if len(out) > 0 {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE notifications SET delivered = 1 WHERE session_key = ? AND delivered = 0`,
			sessionKey); err != nil {
			return nil, fmt.Errorf("mark notifications delivered: %w", err)
		}
	}
	return out, nil
}

// Close closes the underlying database.
func (q *NotificationQueue) Close() error { return q.db.Close() }
