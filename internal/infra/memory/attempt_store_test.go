package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trivia-service/internal/domain"
)

func TestAttemptStoreNumbersPerQuizAndOwner(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	alice := domain.UserOwner("alice")

	for want := 1; want <= 3; want++ {
		got, err := store.NextAttemptNumber(ctx, "quiz-1", alice)
		if err != nil {
			t.Fatalf("next number: %v", err)
		}
		if got != want {
			t.Fatalf("expected attempt number %d, got %d", want, got)
		}
	}

	if got, _ := store.NextAttemptNumber(ctx, "quiz-2", alice); got != 1 {
		t.Fatalf("expected fresh counter for another quiz, got %d", got)
	}
	// A group with the same id as a user is a different owner.
	if got, _ := store.NextAttemptNumber(ctx, "quiz-1", domain.GroupOwner("alice")); got != 1 {
		t.Fatalf("expected fresh counter for group owner, got %d", got)
	}
}

func TestAttemptStoreConcurrentNumbersAreUnique(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	owner := domain.UserOwner("u1")

	const n = 50
	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := store.NextAttemptNumber(ctx, "quiz-1", owner)
			if err != nil {
				t.Errorf("next number: %v", err)
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, n)
	for num := range results {
		if seen[num] {
			t.Fatalf("attempt number %d handed out twice", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique numbers, got %d", n, len(seen))
	}
}

func TestAttemptStoreRejectedSaveLeavesNothing(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	owner := domain.UserOwner("u1")

	first := domain.Attempt{ID: "a1", QuizID: "quiz-1", Owner: owner, AttemptNumber: 1, Status: domain.AttemptCompleted}
	if err := store.SaveAttempt(ctx, first, []domain.Response{{ID: "r1", QuestionID: "q1", Owner: owner}}); err != nil {
		t.Fatalf("save attempt: %v", err)
	}

	clash := first
	clash.ID = "a2"
	if err := store.SaveAttempt(ctx, clash, []domain.Response{{ID: "r2", QuestionID: "q1", Owner: owner}}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for reused attempt number, got %v", err)
	}
	if _, err := store.GetAttempt(ctx, "a2"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected clashing attempt not to be stored, got %v", err)
	}

	dup := domain.Attempt{ID: "a3", QuizID: "quiz-1", Owner: owner, AttemptNumber: 2, Status: domain.AttemptCompleted}
	responses := []domain.Response{
		{ID: "r3", QuestionID: "q1", Owner: owner},
		{ID: "r4", QuestionID: "q1", Owner: owner},
	}
	if err := store.SaveAttempt(ctx, dup, responses); !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("expected duplicate response error, got %v", err)
	}
	if _, err := store.GetAttempt(ctx, "a3"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt with duplicate responses not to be stored, got %v", err)
	}
	if _, err := store.ListResponses(ctx, "a3"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected no responses for rejected attempt, got %v", err)
	}

	list, err := store.ListAttempts(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a1" {
		t.Fatalf("expected only the first attempt to remain, got %+v", list)
	}
	// The rejected number is still free.
	if err := store.SaveAttempt(ctx, dup, responses[:1]); err != nil {
		t.Fatalf("save after rejection: %v", err)
	}
}

func TestAttemptStoreSaveAndList(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	owner := domain.GroupOwner("g1")
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a1", "a2"} {
		done := base.Add(time.Duration(i)*time.Minute + time.Second)
		attempt := domain.Attempt{
			ID: id, QuizID: "quiz-1", Owner: owner, AttemptNumber: i + 1, Score: 9,
			Status: domain.AttemptCompleted, StartedAt: base.Add(time.Duration(i) * time.Minute), CompletedAt: &done,
		}
		responses := []domain.Response{
			{ID: id + "-r1", QuestionID: "q1", Owner: owner, SelectedChoiceIDs: []string{"c2"}, PointsAwarded: 4},
			{ID: id + "-r2", QuestionID: "q2", Owner: owner, SelectedChoiceIDs: []string{"a", "c"}, PointsAwarded: 5},
		}
		if err := store.SaveAttempt(ctx, attempt, responses); err != nil {
			t.Fatalf("save attempt: %v", err)
		}
		responses[0].SelectedChoiceIDs[0] = "mutated"
	}
	if err := store.SaveAttempt(ctx, domain.Attempt{ID: "other", QuizID: "quiz-1", Owner: domain.UserOwner("u1"), AttemptNumber: 1}, nil); err != nil {
		t.Fatalf("save other attempt: %v", err)
	}

	got, err := store.GetAttempt(ctx, "a1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if got.Score != 9 || got.Status != domain.AttemptCompleted || got.CompletedAt == nil || got.AttemptNumber != 1 {
		t.Fatalf("unexpected saved attempt %+v", got)
	}

	responses, err := store.ListResponses(ctx, "a1")
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	if len(responses) != 2 || responses[0].QuestionID != "q1" || responses[1].QuestionID != "q2" {
		t.Fatalf("expected responses in question order, got %+v", responses)
	}
	if responses[0].AttemptID != "a1" || responses[0].SelectedChoiceIDs[0] != "c2" {
		t.Fatalf("expected stored response to be linked and copied, got %+v", responses[0])
	}

	list, err := store.ListAttempts(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a2" || list[1].ID != "a1" {
		t.Fatalf("expected newest-first group attempts [a2 a1], got %+v", list)
	}
}
