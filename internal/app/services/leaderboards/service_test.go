package leaderboards

import (
	"context"
	"errors"
	"testing"

	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage"
	"github.com/sekspesu/GRIM-REAPERS-YIELD-FARM/internal/app/storage/memory"
)

func TestRankedEntriesOrdersByTVL(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	deposits := []struct {
		owner string
		tvl   int64
	}{
		{"carol", 60},
		{"alice", 100},
		{"eve", 25},
		{"bob", 75},
		{"dave", 50},
	}
	for _, d := range deposits {
		if _, err := store.AddLeaderboardTVL(ctx, d.owner, d.tvl); err != nil {
			t.Fatalf("seed %s: %v", d.owner, err)
		}
	}

	entries, err := svc.RankedEntries(ctx)
	if err != nil {
		t.Fatalf("ranked entries: %v", err)
	}

	wantOrder := []string{"alice", "bob", "carol", "dave", "eve"}
	if len(entries) != len(wantOrder) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantOrder))
	}
	for i, owner := range wantOrder {
		if entries[i].Owner != owner {
			t.Fatalf("rank %d = %s, want %s", i, entries[i].Owner, owner)
		}
		if entries[i].Rank != uint32(i) {
			t.Fatalf("rank field for %s = %d, want %d", owner, entries[i].Rank, i)
		}
	}
}

func TestRankedEntriesReorderAfterWithdrawal(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	if _, err := store.AddLeaderboardTVL(ctx, "alice", 100); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if _, err := store.AddLeaderboardTVL(ctx, "bob", 75); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	// Alice withdraws enough to fall behind Bob.
	if _, err := store.AddLeaderboardTVL(ctx, "alice", -50); err != nil {
		t.Fatalf("withdraw alice: %v", err)
	}

	entries, err := svc.RankedEntries(ctx)
	if err != nil {
		t.Fatalf("ranked entries: %v", err)
	}
	if entries[0].Owner != "bob" || entries[1].Owner != "alice" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Owner, entries[1].Owner)
	}
}

func TestRankedEntriesTieBreaksByInsertionOrder(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	if _, err := store.AddLeaderboardTVL(ctx, "first", 500); err != nil {
		t.Fatalf("seed first: %v", err)
	}
	if _, err := store.AddLeaderboardTVL(ctx, "second", 500); err != nil {
		t.Fatalf("seed second: %v", err)
	}

	entries, err := svc.RankedEntries(ctx)
	if err != nil {
		t.Fatalf("ranked entries: %v", err)
	}
	if entries[0].Owner != "first" || entries[1].Owner != "second" {
		t.Fatalf("tie broken wrong: %s, %s", entries[0].Owner, entries[1].Owner)
	}
}

func TestEntryReturnsRankedView(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()

	if _, err := store.AddLeaderboardTVL(ctx, "alice", 100); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if _, err := store.AddLeaderboardTVL(ctx, "bob", 200); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	entry, err := svc.Entry(ctx, "alice")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.Rank != 1 {
		t.Fatalf("alice rank = %d, want 1", entry.Rank)
	}

	if _, err := svc.Entry(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
