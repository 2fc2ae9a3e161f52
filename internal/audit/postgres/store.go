// Package postgres persists audit entries for deployments where the ops log
// must survive restarts.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"chaintrail/internal/audit"
	id "chaintrail/pkg/domain"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	product_id BIGINT NOT NULL,
	outcome    TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	tx_ref     TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS audit_entries_actor_idx ON audit_entries (actor, created_at);
`

// EnsureSchema creates the audit table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (created_at, actor, action, product_id, outcome, reason, tx_ref, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Timestamp, entry.Actor.String(), string(entry.Action), int64(entry.ProductID),
		string(entry.Outcome), entry.Reason, entry.TxRef, entry.RequestID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListByActor(ctx context.Context, actor id.Address) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, actor, action, product_id, outcome, reason, tx_ref, request_id
		 FROM audit_entries WHERE actor = $1 ORDER BY created_at, id`,
		actor.String())
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry     audit.Entry
			actorStr  string
			actionStr string
			pid       int64
			outcome   string
		)
		if err := rows.Scan(&entry.Timestamp, &actorStr, &actionStr, &pid, &outcome, &entry.Reason, &entry.TxRef, &entry.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Actor = id.Address(actorStr)
		entry.Action = audit.Action(actionStr)
		entry.ProductID = id.ProductID(pid)
		entry.Outcome = audit.Outcome(outcome)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
