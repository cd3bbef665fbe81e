// Package postgres implements store.Store using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peopleworks/ason/store"
)

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the audit table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		route TEXT NOT NULL,
		script TEXT,
		raw_result TEXT,
		response TEXT NOT NULL,
		error TEXT,
		attempts INTEGER NOT NULL,
		success BOOLEAN NOT NULL,
		created_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// SaveTurn appends one audit record.
func (s *Store) SaveTurn(ctx context.Context, rec store.TurnRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, task, route, script, raw_result, response, error, attempts, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Task, rec.Route, rec.Script, rec.RawResult, rec.Response,
		rec.Error, rec.Attempts, rec.Success, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit records, newest first.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]store.TurnRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task, route, script, raw_result, response, error, attempts, success, created_at
		 FROM turns ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var out []store.TurnRecord
	for rows.Next() {
		var rec store.TurnRecord
		if err := rows.Scan(&rec.ID, &rec.Task, &rec.Route, &rec.Script, &rec.RawResult,
			&rec.Response, &rec.Error, &rec.Attempts, &rec.Success, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close is a no-op: the pool is externally owned.
func (s *Store) Close() error { return nil }
