package reconcile

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/save4223/save4223server/internal/db"
	"github.com/save4223/save4223server/internal/model"
	"github.com/save4223/save4223server/internal/seed"
	"github.com/save4223/save4223server/internal/store"
)

type env struct {
	r      *Reconciler
	db     *sql.DB
	seeded *seed.Result
	now    time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	res, err := seed.Seed(context.Background(), database, now)
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	r := New(database, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Now = func() time.Time { return now }
	return &env{r: r, db: database, seeded: res, now: now}
}

func (e *env) item(t *testing.T, tag string) *model.Item {
	t.Helper()
	item, err := store.GetItemByRfid(context.Background(), e.db, tag)
	if err != nil || item == nil {
		t.Fatalf("loading item %s: %v", tag, err)
	}
	if err := item.CheckCustody(); err != nil {
		t.Errorf("custody invariant: %v", err)
	}
	return item
}

func (e *env) request(sessionID string, start, end []string) Request {
	return Request{
		SessionID:  sessionID,
		UserID:     seed.TestUserID,
		CabinetID:  e.seeded.OpenCabinetID,
		StartRfids: start,
		EndRfids:   end,
	}
}

var allTags = []string{"RFID-OSC-001", "RFID-OSC-002", "RFID-TOOL-001"}

func TestBorrowOne(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.r.ReconcileSession(ctx, e.request("s1", allTags, []string{"RFID-OSC-002", "RFID-TOOL-001"}))
	if err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}
	if res.Summary.Borrowed != 1 || res.Summary.Returned != 0 {
		t.Fatalf("unexpected summary %+v", res.Summary)
	}
	if res.SessionStatus != model.SessionCompleted {
		t.Errorf("expected COMPLETED session, got %s", res.SessionStatus)
	}

	applied := res.Transactions[0]
	if applied.RfidTag != "RFID-OSC-001" || applied.Action != model.ActionBorrow {
		t.Errorf("unexpected transaction %+v", applied)
	}
	wantDue := e.now.Add(14 * 24 * time.Hour)
	if applied.DueAt == nil || !applied.DueAt.Equal(wantDue) {
		t.Errorf("expected due %v from item type, got %v", wantDue, applied.DueAt)
	}

	item := e.item(t, "RFID-OSC-001")
	if item.Status != model.ItemStatusBorrowed || *item.CurrentHolderID != seed.TestUserID {
		t.Errorf("expected item borrowed by test user, got %+v", item)
	}
	if !item.DueAt.Equal(wantDue) {
		t.Errorf("expected stored due %v, got %v", wantDue, item.DueAt)
	}
}

func TestBorrowThenReturn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.r.ReconcileSession(ctx, e.request("s1", []string{"RFID-TOOL-001"}, nil)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if due := e.item(t, "RFID-TOOL-001").DueAt; !due.Equal(e.now.Add(7 * 24 * time.Hour)) {
		t.Errorf("expected 7 day due date, got %v", due)
	}

	res, err := e.r.ReconcileSession(ctx, e.request("s2", nil, []string{"RFID-TOOL-001"}))
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if res.Summary.Returned != 1 || res.Transactions[0].DueAt != nil {
		t.Errorf("unexpected return result %+v", res)
	}

	item := e.item(t, "RFID-TOOL-001")
	if item.Status != model.ItemStatusAvailable || item.CurrentHolderID != nil || item.DueAt != nil {
		t.Errorf("expected available item with no custody, got %+v", item)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.request("s1", allTags, []string{"RFID-TOOL-001"})

	first, err := e.r.ReconcileSession(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Summary.Borrowed != 2 {
		t.Fatalf("expected 2 borrows, got %+v", first.Summary)
	}

	second, err := e.r.ReconcileSession(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Summary.Borrowed != 0 || len(second.Transactions) != 0 {
		t.Errorf("expected replay to apply nothing, got %+v", second)
	}
	for _, s := range second.Skipped {
		if s.Reason != SkipAlreadyRecorded {
			t.Errorf("expected already_recorded, got %+v", s)
		}
	}

	txs, _ := store.ListSessionTransactions(ctx, e.db, "s1")
	if len(txs) != 2 {
		t.Errorf("expected 2 logged transactions after replay, got %d", len(txs))
	}
}

func TestIdenticalSnapshotsProduceNothing(t *testing.T) {
	e := newEnv(t)

	res, err := e.r.ReconcileSession(context.Background(), e.request("s1", allTags, allTags))
	if err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}
	if len(res.Transactions) != 0 || len(res.Skipped) != 0 {
		t.Errorf("expected no changes, got %+v", res)
	}
	for _, tag := range allTags {
		if e.item(t, tag).Status != model.ItemStatusAvailable {
			t.Errorf("%s changed status", tag)
		}
	}
}

func TestUnknownTagDoesNotBlockBatch(t *testing.T) {
	e := newEnv(t)

	res, err := e.r.ReconcileSession(context.Background(),
		e.request("s1", []string{"GHOST", "RFID-OSC-001"}, []string{"GHOST-2"}))
	if err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}
	if res.Summary.Borrowed != 1 {
		t.Errorf("expected the known tag to be borrowed, got %+v", res.Summary)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("expected 2 skipped tags, got %+v", res.Skipped)
	}
	for _, s := range res.Skipped {
		if s.Reason != SkipUnknownTag {
			t.Errorf("expected unknown_tag, got %+v", s)
		}
	}
}

func TestAlreadyBorrowedIsSkipped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	other, _ := store.CreateUser(ctx, e.db, "", "other@example.com", "", model.RoleUser)
	first := e.request("s1", []string{"RFID-OSC-001"}, nil)
	first.UserID = other.ID
	if _, err := e.r.ReconcileSession(ctx, first); err != nil {
		t.Fatalf("first borrow: %v", err)
	}

	res, err := e.r.ReconcileSession(ctx, e.request("s2", []string{"RFID-OSC-001"}, nil))
	if err != nil {
		t.Fatalf("second borrow: %v", err)
	}
	if res.Summary.Borrowed != 0 || len(res.Skipped) != 1 || res.Skipped[0].Reason != SkipAlreadyBorrowed {
		t.Fatalf("expected already_borrowed skip, got %+v", res)
	}

	if holder := e.item(t, "RFID-OSC-001").CurrentHolderID; *holder != other.ID {
		t.Errorf("holder changed to %s", *holder)
	}
	if txs, _ := store.ListSessionTransactions(ctx, e.db, "s2"); len(txs) != 0 {
		t.Errorf("rolled back borrow must not leave a log row, got %d", len(txs))
	}
}

func TestReturnByOtherUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	other, _ := store.CreateUser(ctx, e.db, "", "other@example.com", "", model.RoleUser)
	borrow := e.request("s1", []string{"RFID-OSC-001"}, nil)
	borrow.UserID = other.ID
	if _, err := e.r.ReconcileSession(ctx, borrow); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// The test user puts back an item someone else borrowed.
	if _, err := e.r.ReconcileSession(ctx, e.request("s2", nil, []string{"RFID-OSC-001"})); err != nil {
		t.Fatalf("return: %v", err)
	}

	if e.item(t, "RFID-OSC-001").Status != model.ItemStatusAvailable {
		t.Error("expected return by another user to succeed")
	}
	txs, _ := store.ListSessionTransactions(ctx, e.db, "s2")
	if len(txs) != 1 || txs[0].UserID != seed.TestUserID {
		t.Errorf("expected RETURN logged against the user who closed the cabinet, got %+v", txs)
	}
}

func TestMissedAuthorizeCreatesSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.r.ReconcileSession(ctx, e.request("never-authorized", allTags, allTags)); err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}
	s, _ := store.GetSession(ctx, e.db, "never-authorized")
	if s == nil || s.Status != model.SessionCompleted || !s.StartTime.Equal(e.now) {
		t.Errorf("expected session created as completed, got %+v", s)
	}
}

func TestAuthorizedSessionIsCompleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	opened := e.now.Add(-time.Minute)

	store.OpenSession(ctx, e.db, "s1", e.seeded.OpenCabinetID, seed.TestUserID, opened)
	if _, err := e.r.ReconcileSession(ctx, e.request("s1", allTags, allTags)); err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}

	s, _ := store.GetSession(ctx, e.db, "s1")
	if s.Status != model.SessionCompleted || !s.StartTime.Equal(opened) || !s.EndTime.Equal(e.now) {
		t.Errorf("unexpected session %+v", s)
	}
}

func TestValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bad := e.request("", nil, nil)
	if _, err := e.r.ReconcileSession(ctx, bad); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for missing session id, got %v", err)
	}

	bad = e.request("s1", nil, nil)
	bad.CabinetID = 999
	if _, err := e.r.ReconcileSession(ctx, bad); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for unknown cabinet, got %v", err)
	}
}

func TestEvidenceStoredAndReferenced(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)))

	req := e.request("s1", []string{"RFID-OSC-001"}, nil)
	req.EvidenceImage = base64.StdEncoding.EncodeToString(buf.Bytes())
	res, err := e.r.ReconcileSession(ctx, req)
	if err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}
	if !res.EvidenceSaved {
		t.Fatal("expected evidence to be saved")
	}

	data, mime, _ := store.GetEvidence(ctx, e.db, "s1")
	if len(data) == 0 || mime != "image/jpeg" {
		t.Errorf("expected stored jpeg, got %d bytes %q", len(data), mime)
	}
	txs, _ := store.ListSessionTransactions(ctx, e.db, "s1")
	if len(txs) != 1 || txs[0].EvidenceImagePath != model.EvidencePath("s1") {
		t.Errorf("expected evidence path on transaction, got %+v", txs)
	}
}

func TestBadEvidenceDoesNotFailSync(t *testing.T) {
	e := newEnv(t)

	req := e.request("s1", []string{"RFID-OSC-001"}, nil)
	req.EvidenceImage = "definitely-not-an-image"
	res, err := e.r.ReconcileSession(context.Background(), req)
	if err != nil {
		t.Fatalf("ReconcileSession: %v", err)
	}
	if res.EvidenceSaved || res.Summary.Borrowed != 1 {
		t.Errorf("expected sync to proceed without evidence, got %+v", res)
	}
}

// Two cabinets report the same tag leaving at the same time. Exactly one
// borrow may win.
func TestConcurrentBorrowOfSameTag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	users := make([]string, 8)
	for i := range users {
		u, err := store.CreateUser(ctx, e.db, "", string(rune('a'+i))+"@example.com", "", model.RoleUser)
		if err != nil {
			t.Fatal(err)
		}
		users[i] = u.ID
	}

	var wg sync.WaitGroup
	results := make([]*Result, len(users))
	errs := make([]error, len(users))
	for i, uid := range users {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			req := e.request("race-"+uid, []string{"RFID-OSC-001"}, nil)
			req.UserID = uid
			results[i], errs[i] = e.r.ReconcileSession(ctx, req)
		}(i, uid)
	}
	wg.Wait()

	wins := 0
	for i := range users {
		if errs[i] != nil {
			t.Fatalf("reconcile %d: %v", i, errs[i])
		}
		wins += results[i].Summary.Borrowed
	}
	if wins != 1 {
		t.Errorf("expected exactly one borrow to win, got %d", wins)
	}
	e.item(t, "RFID-OSC-001")
}

func TestExpireStale(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	store.OpenSession(ctx, e.db, "old", e.seeded.OpenCabinetID, seed.TestUserID, e.now.Add(-2*time.Hour))
	store.OpenSession(ctx, e.db, "new", e.seeded.OpenCabinetID, seed.TestUserID, e.now.Add(-time.Minute))

	n, err := e.r.ExpireStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session, got %d", n)
	}

	// A late sync for the expired session still settles its items.
	res, err := e.r.ReconcileSession(ctx, e.request("old", []string{"RFID-OSC-001"}, nil))
	if err != nil {
		t.Fatalf("late sync: %v", err)
	}
	if res.SessionStatus != model.SessionTimeout || res.Summary.Borrowed != 1 {
		t.Errorf("unexpected late sync result %+v", res)
	}

	s, err := store.GetSession(ctx, e.db, "old")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(s.SnapshotStartRfids) != 1 || s.SnapshotEndRfids == nil || len(s.SnapshotEndRfids) != 0 {
		t.Errorf("expected late snapshots recorded, got %v / %v", s.SnapshotStartRfids, s.SnapshotEndRfids)
	}
}
