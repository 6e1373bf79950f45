package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveEvidence stores the evidence photo of a session, replacing any earlier one.
func SaveEvidence(ctx context.Context, q Querier, sessionID string, data []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO session_evidence (session_id, image, image_mime, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET image = excluded.image, image_mime = excluded.image_mime`,
		sessionID, data, mime, now(),
	)
	if err != nil {
		return fmt.Errorf("saving evidence: %w", err)
	}
	return nil
}

// GetEvidence returns the evidence photo of a session. data is nil if none is stored.
func GetEvidence(ctx context.Context, q Querier, sessionID string) (data []byte, mime string, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT image, image_mime FROM session_evidence WHERE session_id = ?`, sessionID,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting evidence: %w", err)
	}
	return data, mime, nil
}
