package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// RankingStore is an in-memory implementation of app.RankingStore.
type RankingStore struct {
	mu       sync.RWMutex
	clock    func() time.Time
	rankings map[domain.Owner]*domain.Ranking
}

func NewRankingStore() *RankingStore {
	return &RankingStore{
		clock:    time.Now,
		rankings: make(map[domain.Owner]*domain.Ranking),
	}
}

func (s *RankingStore) Accumulate(_ context.Context, owner domain.Owner, delta domain.RankingDelta) (domain.Ranking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rankings[owner]
	if !ok {
		r = &domain.Ranking{Owner: owner, Monthly: make(map[string]int)}
		s.rankings[owner] = r
	}
	r.Points += delta.Points
	r.Penalty += delta.Penalty
	if delta.Month != "" {
		r.Monthly[delta.Month] += delta.Points
	}
	r.UpdatedAt = s.clock()
	return copyRanking(r), nil
}

func (s *RankingStore) Get(_ context.Context, owner domain.Owner) (domain.Ranking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rankings[owner]
	if !ok {
		return domain.Ranking{}, domain.ErrRankingNotFound
	}
	return copyRanking(r), nil
}

func (s *RankingStore) Top(_ context.Context, kind domain.OwnerKind, limit int) ([]domain.Ranking, error) {
	s.mu.RLock()
	out := make([]domain.Ranking, 0, len(s.rankings))
	for owner, r := range s.rankings {
		if owner.Kind == kind {
			out = append(out, copyRanking(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Penalty != out[j].Penalty {
			return out[i].Penalty < out[j].Penalty
		}
		return out[i].Owner.ID < out[j].Owner.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRanking(r *domain.Ranking) domain.Ranking {
	out := *r
	out.Monthly = make(map[string]int, len(r.Monthly))
	for k, v := range r.Monthly {
		out.Monthly[k] = v
	}
	return out
}
