package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"duel-arena/internal/engine"
	"duel-arena/internal/match"
	"duel-arena/internal/stats"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func result(id, winner string, ended time.Time, actors ...string) match.Result {
	r := match.Result{
		MatchID:   id,
		WinnerID:  winner,
		Reason:    engine.ReasonKO,
		Ticks:     321,
		StartedAt: ended.Add(-5 * time.Second),
		EndedAt:   ended,
		FinalState: engine.CombatState{
			MatchID: id,
			Tick:    321,
			Over:    true,
			Winner:  winner,
		},
	}
	for _, a := range actors {
		r.Participants = append(r.Participants, match.Participant{
			ActorID:    a,
			WeaponID:   "spear",
			Attributes: stats.Attributes{Strength: 12, Defense: 3},
		})
		r.FinalState.Combatants = append(r.FinalState.Combatants, engine.CombatantState{ID: a, HP: 10})
	}
	return r
}

// TestRecordAndGet round-trips one result through SQLite
func TestRecordAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ended := time.UnixMilli(1_700_000_000_000).UTC()

	in := result("m1", "a", ended, "a", "b")
	in.Participants[1].IsCPU = true
	if err := store.RecordResult(ctx, in); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}

	got, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.WinnerID != "a" || got.Reason != engine.ReasonKO || got.Ticks != 321 {
		t.Errorf("Unexpected result: %+v", got)
	}
	if !got.EndedAt.Equal(ended) {
		t.Errorf("Expected ended %v, got %v", ended, got.EndedAt)
	}
	if len(got.Participants) != 2 || !got.Participants[1].IsCPU || got.Participants[0].Attributes.Strength != 12 {
		t.Errorf("Unexpected participants: %+v", got.Participants)
	}
	if got.FinalState.Tick != 321 || len(got.FinalState.Combatants) != 2 {
		t.Errorf("Unexpected final state: %+v", got.FinalState)
	}
}

// TestRecordTwiceRejected keeps the first write
func TestRecordTwiceRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	r := result("m1", "a", time.Now(), "a", "b")

	if err := store.RecordResult(ctx, r); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}
	if err := store.RecordResult(ctx, r); !errors.Is(err, ErrAlreadyRecorded) {
		t.Errorf("Expected ErrAlreadyRecorded, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestRecentAndForActor orders newest first and filters by actor
func TestRecentAndForActor(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for _, r := range []match.Result{
		result("m1", "a", base, "a", "b"),
		result("m2", "c", base.Add(time.Minute), "c", "d"),
		result("m3", "b", base.Add(2*time.Minute), "a", "b"),
	} {
		if err := store.RecordResult(ctx, r); err != nil {
			t.Fatalf("RecordResult failed: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].MatchID != "m3" || recent[1].MatchID != "m2" {
		t.Errorf("Unexpected recent order: %+v", recent)
	}
	if len(recent[0].Participants) != 2 {
		t.Errorf("Expected participants on summaries, got %+v", recent[0].Participants)
	}

	mine, err := store.ForActor(ctx, "a", 10)
	if err != nil {
		t.Fatalf("ForActor failed: %v", err)
	}
	if len(mine) != 2 || mine[0].MatchID != "m3" || mine[1].MatchID != "m1" {
		t.Errorf("Unexpected history for a: %+v", mine)
	}
}

// TestOpenIsIdempotent reopens a database without re-running migrations
func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer second.Close()

	if _, err := Open(" "); err == nil {
		t.Error("Expected error for empty path")
	}
}
