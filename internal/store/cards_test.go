package store

import (
	"context"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
)

func TestCardLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	card, err := CreateCard(ctx, database, f.user.ID, "04A1B2C3")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if !card.IsActive {
		t.Error("expected new card to be active")
	}

	if _, err := CreateCard(ctx, database, f.other.ID, "04A1B2C3"); err == nil {
		t.Error("expected duplicate card uid to fail")
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := TouchCard(ctx, database, card.ID, at); err != nil {
		t.Fatalf("TouchCard: %v", err)
	}
	got, err := GetCardByUID(ctx, database, "04A1B2C3")
	if err != nil {
		t.Fatalf("GetCardByUID: %v", err)
	}
	if got.LastUsedAt == nil || !got.LastUsedAt.Equal(at) {
		t.Errorf("expected last used %v, got %v", at, got.LastUsedAt)
	}

	// Another user cannot deactivate the card.
	ok, err := DeactivateCard(ctx, database, f.other.ID, card.ID)
	if err != nil {
		t.Fatalf("DeactivateCard: %v", err)
	}
	if ok {
		t.Error("expected deactivation by non-owner to find nothing")
	}

	ok, err = DeactivateCard(ctx, database, f.user.ID, card.ID)
	if err != nil || !ok {
		t.Fatalf("DeactivateCard: ok=%v err=%v", ok, err)
	}
	got, _ = GetCard(ctx, database, card.ID)
	if got.IsActive {
		t.Error("expected card to be inactive")
	}

	cards, err := ListUserCards(ctx, database, f.user.ID)
	if err != nil {
		t.Fatalf("ListUserCards: %v", err)
	}
	if len(cards) != 1 {
		t.Errorf("expected deactivated card to stay listed, got %d cards", len(cards))
	}
}

func TestListActiveCardHoldersSkipsDeletedAndInactive(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)

	a, _ := CreateCard(ctx, database, f.user.ID, "A")
	used := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	if err := TouchCard(ctx, database, a.ID, used); err != nil {
		t.Fatalf("TouchCard: %v", err)
	}
	inactive, _ := CreateCard(ctx, database, f.user.ID, "B")
	DeactivateCard(ctx, database, f.user.ID, inactive.ID)
	CreateCard(ctx, database, f.other.ID, "C")
	// Soft-delete the profile directly so the card itself stays active.
	if _, err := database.Exec(`UPDATE profiles SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), f.other.ID); err != nil {
		t.Fatalf("deleting profile: %v", err)
	}

	holders, err := ListActiveCardHolders(ctx, database)
	if err != nil {
		t.Fatalf("ListActiveCardHolders: %v", err)
	}
	if len(holders) != 1 || holders[0].CardUID != "A" {
		t.Fatalf("expected only card A, got %+v", holders)
	}
	if holders[0].DisplayName() != "Alice" {
		t.Errorf("expected display name Alice, got %q", holders[0].DisplayName())
	}
	if holders[0].LastUsedAt == nil || !holders[0].LastUsedAt.Equal(used) {
		t.Errorf("expected last used %v, got %v", used, holders[0].LastUsedAt)
	}
}
