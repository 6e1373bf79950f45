// Package store holds the SQL access layer. Functions take a Querier so the
// same code runs against the database directly or inside a transaction.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// now returns the current time in UTC. All stored timestamps are UTC.
func now() time.Time {
	return time.Now().UTC()
}

// utc normalises an optional timestamp for storage.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
