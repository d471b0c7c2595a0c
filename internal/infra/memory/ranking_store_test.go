package memory

import (
	"context"
	"errors"
	"testing"

	"trivia-service/internal/domain"
)

func TestRankingStoreAccumulates(t *testing.T) {
	store := NewRankingStore()
	ctx := context.Background()
	owner := domain.UserOwner("u1")

	if _, err := store.Get(ctx, owner); !errors.Is(err, domain.ErrRankingNotFound) {
		t.Fatalf("expected no ranking yet, got %v", err)
	}

	_, _ = store.Accumulate(ctx, owner, domain.RankingDelta{Points: 5, Penalty: 2, Month: "2024-07"})
	_, _ = store.Accumulate(ctx, owner, domain.RankingDelta{Points: 3, Month: "2024-07"})
	r, err := store.Accumulate(ctx, owner, domain.RankingDelta{Points: 4, Penalty: 1, Month: "2024-08"})
	if err != nil {
		t.Fatalf("accumulate: %v", err)
	}
	if r.Points != 12 || r.Penalty != 3 {
		t.Fatalf("expected 12 points / 3 penalty, got %+v", r)
	}
	if r.Monthly["2024-07"] != 8 || r.Monthly["2024-08"] != 4 {
		t.Fatalf("unexpected monthly buckets %v", r.Monthly)
	}

	// Returned copies must not alias store state.
	r.Monthly["2024-07"] = 1000
	again, _ := store.Get(ctx, owner)
	if again.Monthly["2024-07"] != 8 {
		t.Fatalf("store state mutated through returned ranking")
	}
}

func TestRankingStoreTopOrdersAndSeparatesKinds(t *testing.T) {
	store := NewRankingStore()
	ctx := context.Background()

	_, _ = store.Accumulate(ctx, domain.UserOwner("b"), domain.RankingDelta{Points: 10, Penalty: 1})
	_, _ = store.Accumulate(ctx, domain.UserOwner("a"), domain.RankingDelta{Points: 10, Penalty: 1})
	_, _ = store.Accumulate(ctx, domain.UserOwner("c"), domain.RankingDelta{Points: 10})
	_, _ = store.Accumulate(ctx, domain.UserOwner("d"), domain.RankingDelta{Points: 2})
	_, _ = store.Accumulate(ctx, domain.GroupOwner("g"), domain.RankingDelta{Points: 50})

	top, err := store.Top(ctx, domain.OwnerUser, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	want := []string{"c", "a", "b"}
	if len(top) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(top))
	}
	for i, id := range want {
		if top[i].Owner.ID != id || top[i].Owner.Kind != domain.OwnerUser {
			t.Fatalf("position %d: expected user %s, got %+v", i, id, top[i].Owner)
		}
	}
}
