// Package sqlite persists the decision history audit trail. History is
// best-effort: the orchestrator logs a warning and keeps going when a
// write fails, so a broken audit store never blocks a decision.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tkoike/issuegate/internal/domain/model/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS decision_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	invocation_id TEXT NOT NULL,
	actor_id      TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	action        TEXT NOT NULL,
	external_id   TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	decided_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_history_decided_at
	ON decision_history(decided_at);
`

// HistoryRepositoryImpl implements repository.HistoryRepository with SQLite.
type HistoryRepositoryImpl struct {
	db *sql.DB
}

// NewHistoryRepository opens (creating if needed) the history database at
// path and ensures the schema exists.
func NewHistoryRepository(path string) (*HistoryRepositoryImpl, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &HistoryRepositoryImpl{db: db}, nil
}

// Record appends one decision outcome.
func (r *HistoryRepositoryImpl) Record(ctx context.Context, e history.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO decision_history
			(invocation_id, actor_id, fingerprint, action, external_id, reason, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.InvocationID, e.ActorID, e.Fingerprint, e.Action, e.ExternalID, e.Reason,
		e.DecidedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision history: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (r *HistoryRepositoryImpl) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, invocation_id, actor_id, fingerprint, action, external_id, reason, decided_at
		 FROM decision_history
		 ORDER BY id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decision history: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		var decidedAt string
		if err := rows.Scan(&e.ID, &e.InvocationID, &e.ActorID, &e.Fingerprint, &e.Action, &e.ExternalID, &e.Reason, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan decision history: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, decidedAt)
		if err != nil {
			return nil, fmt.Errorf("parse decided_at %q: %w", decidedAt, err)
		}
		e.DecidedAt = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision history: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (r *HistoryRepositoryImpl) Close() error {
	return r.db.Close()
}
