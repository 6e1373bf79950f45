package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/save4223/save4223server/internal/model"
)

const sessionColumns = `id, cabinet_id, user_id, start_time, end_time, status, snapshot_start_rfids, snapshot_end_rfids`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	s := &model.Session{}
	var start, end sql.NullString
	if err := row.Scan(&s.ID, &s.CabinetID, &s.UserID, &s.StartTime, &s.EndTime, &s.Status, &start, &end); err != nil {
		return nil, err
	}
	var err error
	if s.SnapshotStartRfids, err = decodeRfids(start); err != nil {
		return nil, err
	}
	if s.SnapshotEndRfids, err = decodeRfids(end); err != nil {
		return nil, err
	}
	return s, nil
}

func encodeRfids(tags []string) (sql.NullString, error) {
	if tags == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding rfid snapshot: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeRfids(s sql.NullString) ([]string, error) {
	if !s.Valid {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s.String), &tags); err != nil {
		return nil, fmt.Errorf("decoding rfid snapshot: %w", err)
	}
	return tags, nil
}

// OpenSession records an ACTIVE session stub. An existing row with the same
// ID is left alone.
func OpenSession(ctx context.Context, q Querier, id string, cabinetID int64, userID string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO cabinet_sessions (id, cabinet_id, user_id, start_time, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, cabinetID, userID, at.UTC(), model.SessionActive, now(),
	)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	return nil
}

// GetSession returns a session by ID.
func GetSession(ctx context.Context, q Querier, id string) (*model.Session, error) {
	s, err := scanSession(q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM cabinet_sessions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

// CompleteSession closes a session in one statement. An ACTIVE row becomes
// COMPLETED with the end snapshot (the start snapshot is filled in if the
// row has none). A missing row is created already COMPLETED with both
// snapshots. A terminal row keeps its status and end time; only snapshots
// it never received are filled in. The stored row is returned.
func CompleteSession(ctx context.Context, q Querier, id string, cabinetID int64, userID string, startRfids, endRfids []string, at time.Time) (*model.Session, error) {
	if startRfids == nil {
		startRfids = []string{}
	}
	if endRfids == nil {
		endRfids = []string{}
	}
	start, err := encodeRfids(startRfids)
	if err != nil {
		return nil, err
	}
	end, err := encodeRfids(endRfids)
	if err != nil {
		return nil, err
	}

	at = at.UTC()
	_, err = q.ExecContext(ctx,
		`INSERT INTO cabinet_sessions
		 (id, cabinet_id, user_id, start_time, end_time, status, snapshot_start_rfids, snapshot_end_rfids, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     end_time = CASE WHEN cabinet_sessions.status = ?
		         THEN excluded.end_time ELSE cabinet_sessions.end_time END,
		     status = CASE WHEN cabinet_sessions.status = ?
		         THEN excluded.status ELSE cabinet_sessions.status END,
		     snapshot_end_rfids = CASE WHEN cabinet_sessions.status = ?
		         THEN excluded.snapshot_end_rfids
		         ELSE COALESCE(cabinet_sessions.snapshot_end_rfids, excluded.snapshot_end_rfids) END,
		     snapshot_start_rfids = COALESCE(cabinet_sessions.snapshot_start_rfids, excluded.snapshot_start_rfids)`,
		id, cabinetID, userID, at, at, model.SessionCompleted, start, end, at,
		model.SessionActive, model.SessionActive, model.SessionActive,
	)
	if err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}
	return GetSession(ctx, q, id)
}

// ForceCloseSession moves an ACTIVE session to FORCE_CLOSED.
func ForceCloseSession(ctx context.Context, q Querier, id string, at time.Time) (*model.Session, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE cabinet_sessions SET status = ?, end_time = ? WHERE id = ? AND status = ?`,
		model.SessionForceClosed, at.UTC(), id, model.SessionActive,
	)
	if err != nil {
		return nil, fmt.Errorf("force closing session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking force closed session: %w", err)
	}

	s, err := GetSession(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, model.ErrSessionNotFound
	}
	if n == 0 {
		return s, model.ErrSessionClosed
	}
	return s, nil
}

// ExpireSessions moves ACTIVE sessions started before cutoff to TIMEOUT and
// returns how many were expired.
func ExpireSessions(ctx context.Context, q Querier, cutoff, at time.Time) (int, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, start_time FROM cabinet_sessions WHERE status = ?`, model.SessionActive,
	)
	if err != nil {
		return 0, fmt.Errorf("listing active sessions: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		var start time.Time
		if err := rows.Scan(&id, &start); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning active session: %w", err)
		}
		if start.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("closing session rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("listing active sessions: %w", err)
	}

	expired := 0
	for _, id := range stale {
		result, err := q.ExecContext(ctx,
			`UPDATE cabinet_sessions SET status = ?, end_time = ? WHERE id = ? AND status = ?`,
			model.SessionTimeout, at.UTC(), id, model.SessionActive,
		)
		if err != nil {
			return expired, fmt.Errorf("expiring session: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return expired, fmt.Errorf("checking expired session: %w", err)
		}
		expired += int(n)
	}
	return expired, nil
}
