package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-service/internal/domain"
)

type counterKey struct {
	quizID string
	owner  domain.Owner
}

// AttemptStore is an in-memory implementation of app.AttemptStore.
// A single mutex serializes numbering, so numbers are never handed out twice.
type AttemptStore struct {
	mu        sync.RWMutex
	counters  map[counterKey]int
	numbers   map[counterKey]map[int]string
	attempts  map[string]domain.Attempt
	order     []string
	responses map[string][]domain.Response
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		counters:  make(map[counterKey]int),
		numbers:   make(map[counterKey]map[int]string),
		attempts:  make(map[string]domain.Attempt),
		responses: make(map[string][]domain.Response),
	}
}

func (s *AttemptStore) NextAttemptNumber(_ context.Context, quizID string, owner domain.Owner) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{quizID: quizID, owner: owner}
	s.counters[key]++
	return s.counters[key], nil
}

// SaveAttempt checks every write before applying any, so a rejected attempt leaves
// no trace.
func (s *AttemptStore) SaveAttempt(_ context.Context, attempt domain.Attempt, responses []domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{quizID: attempt.QuizID, owner: attempt.Owner}
	if _, dup := s.numbers[key][attempt.AttemptNumber]; dup {
		return domain.ErrAttemptConflict
	}
	if _, dup := s.attempts[attempt.ID]; dup {
		return domain.ErrAttemptConflict
	}
	questions := make(map[string]struct{}, len(responses))
	for _, resp := range responses {
		if _, dup := questions[resp.QuestionID]; dup {
			return domain.ErrDuplicateResponse
		}
		questions[resp.QuestionID] = struct{}{}
	}

	taken, ok := s.numbers[key]
	if !ok {
		taken = make(map[int]string)
		s.numbers[key] = taken
	}
	taken[attempt.AttemptNumber] = attempt.ID
	s.attempts[attempt.ID] = attempt
	s.order = append(s.order, attempt.ID)
	stored := make([]domain.Response, 0, len(responses))
	for _, resp := range responses {
		resp.AttemptID = attempt.ID
		resp.SelectedChoiceIDs = append([]string(nil), resp.SelectedChoiceIDs...)
		stored = append(stored, resp)
	}
	s.responses[attempt.ID] = stored
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) ListResponses(_ context.Context, attemptID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return nil, domain.ErrAttemptNotFound
	}
	stored := s.responses[attemptID]
	out := make([]domain.Response, len(stored))
	copy(out, stored)
	return out, nil
}

// ListAttempts returns newest first; insertion order breaks ties on equal start times.
func (s *AttemptStore) ListAttempts(_ context.Context, owner domain.Owner) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		attempt := s.attempts[s.order[i]]
		if attempt.Owner == owner {
			out = append(out, attempt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}
