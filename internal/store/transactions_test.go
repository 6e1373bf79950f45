package store

import (
	"context"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/model"
)

func TestRecordTransactionOncePerAction(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	CompleteSession(ctx, database, "sess-1", f.cabinet.ID, f.user.ID, nil, nil, time.Now())

	tx := model.Transaction{
		SessionID:  "sess-1",
		ItemID:     f.item.ID,
		UserID:     f.user.ID,
		ActionType: model.ActionBorrow,
	}
	id, inserted, err := RecordTransaction(ctx, database, tx)
	if err != nil {
		t.Fatalf("RecordTransaction: %v", err)
	}
	if !inserted || id == 0 {
		t.Fatalf("expected first record to insert, got id=%d inserted=%v", id, inserted)
	}

	_, inserted, err = RecordTransaction(ctx, database, tx)
	if err != nil {
		t.Fatalf("RecordTransaction replay: %v", err)
	}
	if inserted {
		t.Error("expected replayed action to be ignored")
	}

	// A different action on the same item is a separate entry.
	tx.ActionType = model.ActionReturn
	if _, inserted, _ := RecordTransaction(ctx, database, tx); !inserted {
		t.Error("expected RETURN to be recorded")
	}

	txs, err := ListSessionTransactions(ctx, database, "sess-1")
	if err != nil {
		t.Fatalf("ListSessionTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].RfidTag != "RFID-OSC-001" || txs[0].CabinetID != f.cabinet.ID {
		t.Errorf("unexpected joined fields: %+v", txs[0])
	}
}

func TestListUserTransactionsLimit(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		sid := "sess-" + string(rune('a'+i))
		CompleteSession(ctx, database, sid, f.cabinet.ID, f.user.ID, nil, nil, base)
		RecordTransaction(ctx, database, model.Transaction{
			SessionID: sid, ItemID: f.item.ID, UserID: f.user.ID,
			ActionType: model.ActionReturn, Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	txs, err := ListUserTransactions(ctx, database, f.user.ID, 5)
	if err != nil {
		t.Fatalf("ListUserTransactions: %v", err)
	}
	if len(txs) != 5 {
		t.Fatalf("expected 5 transactions, got %d", len(txs))
	}
	if txs[0].SessionID != "sess-g" {
		t.Errorf("expected newest first, got %s", txs[0].SessionID)
	}
}
