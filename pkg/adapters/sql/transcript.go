// Package sql stores conversation transcripts in a relational database
// through sqlx. The postgres (lib/pq) and sqlite3 (go-sqlite3) drivers are
// registered by this package.
package sql

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Schema creates the exchanges table. It is valid for postgres and sqlite.
const Schema = `CREATE TABLE IF NOT EXISTS parley_exchanges (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	ending TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT '',
	rule TEXT NOT NULL DEFAULT '',
	understood BOOLEAN NOT NULL,
	PRIMARY KEY (session_id, seq)
)`

const (
	nextSeqQuery = `SELECT COALESCE(MAX(seq), 0) + 1 FROM parley_exchanges WHERE session_id = ?`

	insertQuery = `INSERT INTO parley_exchanges
	(session_id, seq, created_at, query, response, ending, domain, rule, understood)
	VALUES (:session_id, :seq, :created_at, :query, :response, :ending, :domain, :rule, :understood)`

	selectQuery = `SELECT session_id, seq, created_at, query, response, ending, domain, rule, understood
	FROM parley_exchanges WHERE session_id = ? ORDER BY seq ASC`

	deleteQuery = `DELETE FROM parley_exchanges WHERE session_id = ?`
)

// Transcript implements ports.TranscriptStore.
type Transcript struct {
	db *sqlx.DB
}

// New wraps an open database.
func New(db *sqlx.DB) *Transcript {
	return &Transcript{db: db}
}

// Open connects with driverName ("postgres" or "sqlite3") and applies Schema.
func Open(ctx context.Context, driverName, dsn string) (*Transcript, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driverName, err)
	}
	t := New(db)
	if err := t.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Migrate creates the exchanges table if it does not exist.
func (t *Transcript) Migrate(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create transcript table: %w", err)
	}
	return nil
}

// Close closes the database.
func (t *Transcript) Close() error {
	return t.db.Close()
}

// Append records one exchange with the next sequence number of its session.
func (t *Transcript) Append(ctx context.Context, ex domain.Exchange) error {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.GetContext(ctx, &ex.Seq, tx.Rebind(nextSeqQuery), ex.SessionID); err != nil {
		return fmt.Errorf("failed to read transcript sequence: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertQuery, ex); err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}
	return nil
}

// Transcript returns the exchanges of a session ordered by sequence.
func (t *Transcript) Transcript(ctx context.Context, sessionID string) ([]domain.Exchange, error) {
	var out []domain.Exchange
	if err := t.db.SelectContext(ctx, &out, t.db.Rebind(selectQuery), sessionID); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return out, nil
}

// Forget deletes every exchange of a session.
func (t *Transcript) Forget(ctx context.Context, sessionID string) error {
	if _, err := t.db.ExecContext(ctx, t.db.Rebind(deleteQuery), sessionID); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}
