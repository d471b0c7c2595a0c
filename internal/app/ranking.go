package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// MonthKeyLayout buckets ranking history by calendar month.
const MonthKeyLayout = "2006-01"

// RankingStore persists per-owner accumulators. Accumulate must be atomic per owner:
// create-if-missing and add in one step, so concurrent responses never lose points.
type RankingStore interface {
	Accumulate(ctx context.Context, owner domain.Owner, delta domain.RankingDelta) (domain.Ranking, error)
	Get(ctx context.Context, owner domain.Owner) (domain.Ranking, error)
	Top(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Ranking, error)
}

// MonthKey formats t as the ranking bucket key.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// RankingUpdater applies each newly created response to its owner's ranking.
type RankingUpdater struct {
	store RankingStore
	feed  *RankingFeed
	now   func() time.Time
}

func NewRankingUpdater(store RankingStore, feed *RankingFeed) *RankingUpdater {
	return NewRankingUpdaterWithClock(store, feed, time.Now)
}

// NewRankingUpdaterWithClock pins the month bucket clock, for tests.
func NewRankingUpdaterWithClock(store RankingStore, feed *RankingFeed, now func() time.Time) *RankingUpdater {
	return &RankingUpdater{store: store, feed: feed, now: now}
}

// ResponseCreated must be called exactly once per new response, after it is stored.
// User responses only touch user rankings and group responses only group rankings.
func (u *RankingUpdater) ResponseCreated(ctx context.Context, resp domain.Response) (domain.Ranking, error) {
	if !resp.Owner.Kind.Valid() || resp.Owner.ID == "" {
		return domain.Ranking{}, domain.ErrRankingOwnerUnresolved
	}
	delta := domain.RankingDelta{
		Points:  resp.PointsAwarded,
		Penalty: resp.Snapshot.Deduction(),
		Month:   MonthKey(u.now()),
	}
	ranking, err := u.store.Accumulate(ctx, resp.Owner, delta)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("accumulate ranking %s/%s: %w", resp.Owner.Kind, resp.Owner.ID, err)
	}
	if u.feed != nil {
		u.feed.Publish(ranking)
	}
	return ranking, nil
}

// RankingService exposes read access to rankings and the live feed.
type RankingService struct {
	store RankingStore
	feed  *RankingFeed
}

func NewRankingService(store RankingStore, feed *RankingFeed) *RankingService {
	return &RankingService{store: store, feed: feed}
}

func (s *RankingService) Get(ctx context.Context, owner domain.Owner) (domain.Ranking, error) {
	if !owner.Kind.Valid() {
		return domain.Ranking{}, domain.ErrInvalidOwner
	}
	return s.store.Get(ctx, owner)
}

// Leaderboard returns the top rankings of one owner kind.
func (s *RankingService) Leaderboard(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Ranking, error) {
	if !kind.Valid() {
		return nil, domain.ErrInvalidOwner
	}
	if limit <= 0 {
		limit = 10
	}
	return s.store.Top(ctx, kind, limit)
}

// Subscribe streams ranking changes for one owner, starting with the current value
// when one exists. The caller must invoke cancel to avoid leaks.
func (s *RankingService) Subscribe(ctx context.Context, owner domain.Owner) (<-chan domain.Ranking, func(), error) {
	if !owner.Kind.Valid() {
		return nil, nil, domain.ErrInvalidOwner
	}
	var initial *domain.Ranking
	current, err := s.store.Get(ctx, owner)
	switch {
	case err == nil:
		initial = &current
	case !errors.Is(err, domain.ErrNotFound):
		return nil, nil, err
	}
	ch, cancel := s.feed.subscribe(owner, initial)
	return ch, cancel, nil
}

// RankingFeed fans ranking updates out to per-owner subscribers.
type RankingFeed struct {
	buffer      int
	mu          sync.Mutex
	subscribers map[domain.Owner]map[chan domain.Ranking]struct{}
}

func NewRankingFeed(buffer int) *RankingFeed {
	if buffer <= 0 {
		buffer = 8
	}
	return &RankingFeed{
		buffer:      buffer,
		subscribers: make(map[domain.Owner]map[chan domain.Ranking]struct{}),
	}
}

// Publish never blocks; a slow subscriber loses its oldest queued update.
func (f *RankingFeed) Publish(r domain.Ranking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[r.Owner] {
		select {
		case ch <- r:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- r
		}
	}
}

func (f *RankingFeed) subscribe(owner domain.Owner, initial *domain.Ranking) (<-chan domain.Ranking, func()) {
	ch := make(chan domain.Ranking, f.buffer)

	f.mu.Lock()
	subs, ok := f.subscribers[owner]
	if !ok {
		subs = make(map[chan domain.Ranking]struct{})
		f.subscribers[owner] = subs
	}
	subs[ch] = struct{}{}
	if initial != nil {
		ch <- *initial
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[owner]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(f.subscribers, owner)
		}
	}
	return ch, cancel
}
