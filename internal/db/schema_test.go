package db

import (
	"testing"
)

func TestEnsureSchemaIdempotent(t *testing.T) {
	database := NewTestDB(t)

	if err := EnsureSchema(database); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestItemCustodyCheckConstraint(t *testing.T) {
	database := NewTestDB(t)

	if _, err := database.Exec(`INSERT INTO item_types (id, name) VALUES (1, 'Drill')`); err != nil {
		t.Fatalf("inserting item type: %v", err)
	}

	// Borrowed without a holder violates the custody invariant.
	_, err := database.Exec(
		`INSERT INTO items (id, item_type_id, rfid_tag, status) VALUES ('i1', 1, 'T1', 'BORROWED')`,
	)
	if err == nil {
		t.Error("expected CHECK violation for borrowed item without holder")
	}

	// Available with a holder violates it too.
	_, err = database.Exec(
		`INSERT INTO items (id, item_type_id, rfid_tag, status, current_holder_id) VALUES ('i2', 1, 'T2', 'AVAILABLE', 'u1')`,
	)
	if err == nil {
		t.Error("expected CHECK violation for available item with holder")
	}

	_, err = database.Exec(
		`INSERT INTO items (id, item_type_id, rfid_tag, status) VALUES ('i3', 1, 'T3', 'AVAILABLE')`,
	)
	if err != nil {
		t.Errorf("expected clean available item to insert, got %v", err)
	}
}
