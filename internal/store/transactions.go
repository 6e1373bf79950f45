package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/save4223/save4223server/internal/model"
)

// RecordTransaction appends a transaction to the inventory log. Each
// (session, item, action) is logged at most once: if the row already exists
// nothing is written and inserted is false.
func RecordTransaction(ctx context.Context, q Querier, t model.Transaction) (id int64, inserted bool, err error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = now()
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO inventory_transactions
		 (session_id, item_id, user_id, action_type, evidence_image_path, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, item_id, action_type) DO NOTHING`,
		t.SessionID, t.ItemID, t.UserID, t.ActionType, nullString(t.EvidenceImagePath), ts.UTC(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("recording transaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("checking recorded transaction: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("getting transaction id: %w", err)
	}
	return id, true, nil
}

const transactionSelect = `SELECT t.id, t.session_id, t.item_id, t.user_id, t.action_type,
	t.evidence_image_path, t.timestamp, i.rfid_tag, it.name, s.cabinet_id
	FROM inventory_transactions t
	JOIN items i ON i.id = t.item_id
	JOIN item_types it ON it.id = i.item_type_id
	JOIN cabinet_sessions s ON s.id = t.session_id`

func listTransactions(ctx context.Context, q Querier, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var evidence sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.ItemID, &t.UserID, &t.ActionType,
			&evidence, &t.Timestamp, &t.RfidTag, &t.ItemTypeName, &t.CabinetID); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.EvidenceImagePath = evidence.String
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListSessionTransactions returns the transactions of one session in log order.
func ListSessionTransactions(ctx context.Context, q Querier, sessionID string) ([]model.Transaction, error) {
	return listTransactions(ctx, q, transactionSelect+` WHERE t.session_id = ? ORDER BY t.id`, sessionID)
}

// ListUserTransactions returns a user's most recent transactions, newest first.
func ListUserTransactions(ctx context.Context, q Querier, userID string, limit int) ([]model.Transaction, error) {
	return listTransactions(ctx, q,
		transactionSelect+` WHERE t.user_id = ? ORDER BY t.timestamp DESC, t.id DESC LIMIT ?`,
		userID, limit,
	)
}
