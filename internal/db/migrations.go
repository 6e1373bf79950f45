package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: sessions are listed per cabinet and swept by status.
	`CREATE INDEX IF NOT EXISTS idx_cabinet_sessions_status
	     ON cabinet_sessions(status, start_time)`,
	// Migration 2: the borrowed-item guard on user deletion filters by holder and status.
	`CREATE INDEX IF NOT EXISTS idx_items_status_holder
	     ON items(status, current_holder_id)`,
}

// Migrate applies the migrations list. The schema must already exist.
func Migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
