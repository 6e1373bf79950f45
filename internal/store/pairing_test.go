package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/model"
)

func TestPairCardConsumesCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)
	now := time.Now().UTC()

	token, code, err := CreatePairingCode(ctx, database, f.user.ID, now)
	if err != nil {
		t.Fatalf("CreatePairingCode: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(token))
	}
	if code.TokenHash == token {
		t.Error("token must not be stored in plain text")
	}

	res, err := PairCard(ctx, database, token, "CARD-NEW", now)
	if err != nil {
		t.Fatalf("PairCard: %v", err)
	}
	if res.Reactivated || res.Card.UserID != f.user.ID || !res.Card.IsActive {
		t.Errorf("unexpected pair result: %+v", res.Card)
	}

	// Single use.
	if _, err := PairCard(ctx, database, token, "CARD-OTHER", now); !errors.Is(err, model.ErrPairingCodeInvalid) {
		t.Errorf("expected ErrPairingCodeInvalid on reuse, got %v", err)
	}
}

func TestPairingCodeOneLivePerUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)
	now := time.Now().UTC()

	first, _, _ := CreatePairingCode(ctx, database, f.user.ID, now)
	second, _, err := CreatePairingCode(ctx, database, f.user.ID, now)
	if err != nil {
		t.Fatalf("CreatePairingCode: %v", err)
	}

	if c, _ := GetPairingCode(ctx, database, first); c != nil {
		t.Error("expected first code to be replaced")
	}
	if c, _ := GetPairingCode(ctx, database, second); c == nil {
		t.Error("expected second code to be live")
	}
}

func TestPairCardExpired(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)
	issued := time.Now().UTC()

	token, _, _ := CreatePairingCode(ctx, database, f.user.ID, issued)
	_, err := PairCard(ctx, database, token, "CARD-NEW", issued.Add(model.PairingCodeLifetime))
	if !errors.Is(err, model.ErrPairingCodeInvalid) {
		t.Errorf("expected ErrPairingCodeInvalid for expired code, got %v", err)
	}
}

func TestPairCardReactivatesOwnCard(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)
	now := time.Now().UTC()

	card, _ := CreateCard(ctx, database, f.user.ID, "CARD-1")
	DeactivateCard(ctx, database, f.user.ID, card.ID)

	token, _, _ := CreatePairingCode(ctx, database, f.user.ID, now)
	res, err := PairCard(ctx, database, token, "CARD-1", now)
	if err != nil {
		t.Fatalf("PairCard: %v", err)
	}
	if !res.Reactivated || res.Card.ID != card.ID {
		t.Errorf("expected reactivation of card %d, got %+v", card.ID, res)
	}
	got, _ := GetCard(ctx, database, card.ID)
	if !got.IsActive {
		t.Error("expected card to be active again")
	}
}

func TestPairCardClaimedByOther(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, database)
	now := time.Now().UTC()

	CreateCard(ctx, database, f.other.ID, "CARD-1")

	token, _, _ := CreatePairingCode(ctx, database, f.user.ID, now)
	if _, err := PairCard(ctx, database, token, "CARD-1", now); !errors.Is(err, model.ErrCardClaimed) {
		t.Fatalf("expected ErrCardClaimed, got %v", err)
	}

	// A refused pairing leaves the code usable.
	if c, _ := GetPairingCode(ctx, database, token); c == nil {
		t.Error("expected code to survive a conflict")
	}
}
