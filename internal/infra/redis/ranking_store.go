package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/domain"
)

const (
	fieldPoints    = "points"
	fieldPenalty   = "penalty"
	fieldUpdatedAt = "updated_at"
	monthPrefix    = "month:"
)

// RankingStore keeps one hash per owner and one sorted set per owner kind:
//
//	HINCRBY ranking:{kind}:{id} points|penalty|month:{YYYY-MM}
//	ZINCRBY rankings:{kind} {points} {id}
//
// Every accumulation runs in MULTI/EXEC, so concurrent responses never lose updates.
type RankingStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewRankingStore(client *redis.Client) *RankingStore {
	return &RankingStore{client: client, clock: time.Now}
}

func (s *RankingStore) Accumulate(ctx context.Context, owner domain.Owner, delta domain.RankingDelta) (domain.Ranking, error) {
	key := s.key(owner)
	var snapshot *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldPoints, int64(delta.Points))
		pipe.HIncrBy(ctx, key, fieldPenalty, int64(delta.Penalty))
		if delta.Month != "" {
			pipe.HIncrBy(ctx, key, monthPrefix+delta.Month, int64(delta.Points))
		}
		pipe.HSet(ctx, key, fieldUpdatedAt, s.clock().UnixNano())
		pipe.ZIncrBy(ctx, s.boardKey(owner.Kind), float64(delta.Points), owner.ID)
		snapshot = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("redis accumulate: %w", err)
	}
	return parseRanking(owner, snapshot.Val()), nil
}

func (s *RankingStore) Get(ctx context.Context, owner domain.Owner) (domain.Ranking, error) {
	fields, err := s.client.HGetAll(ctx, s.key(owner)).Result()
	if err != nil && !isMiss(err) {
		return domain.Ranking{}, fmt.Errorf("redis get ranking: %w", err)
	}
	if len(fields) == 0 {
		return domain.Ranking{}, domain.ErrRankingNotFound
	}
	return parseRanking(owner, fields), nil
}

// Top reads the highest scorers from the sorted set, then orders them by points,
// penalty and id. Penalty only breaks ties among the fetched entries.
func (s *RankingStore) Top(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Ranking, error) {
	if limit <= 0 {
		return []domain.Ranking{}, nil
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.boardKey(kind), 0, int64(limit-1)).Result()
	if err != nil && !isMiss(err) {
		return nil, fmt.Errorf("redis leaderboard: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	owners := make([]domain.Owner, len(members))
	for i, m := range members {
		owners[i] = domain.Owner{Kind: kind, ID: fmt.Sprint(m.Member)}
		cmds[i] = pipe.HGetAll(ctx, s.key(owners[i]))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis leaderboard details: %w", err)
		}
	}

	out := make([]domain.Ranking, 0, len(members))
	for i, cmd := range cmds {
		out = append(out, parseRanking(owners[i], cmd.Val()))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Penalty != out[j].Penalty {
			return out[i].Penalty < out[j].Penalty
		}
		return out[i].Owner.ID < out[j].Owner.ID
	})
	return out, nil
}

func (s *RankingStore) key(owner domain.Owner) string {
	return "ranking:" + string(owner.Kind) + ":" + owner.ID
}

func (s *RankingStore) boardKey(kind domain.OwnerKind) string {
	return "rankings:" + string(kind)
}

func parseRanking(owner domain.Owner, fields map[string]string) domain.Ranking {
	r := domain.Ranking{Owner: owner, Monthly: make(map[string]int)}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == fieldPoints:
			r.Points = int(n)
		case field == fieldPenalty:
			r.Penalty = int(n)
		case field == fieldUpdatedAt:
			r.UpdatedAt = time.Unix(0, n).UTC()
		case strings.HasPrefix(field, monthPrefix):
			r.Monthly[strings.TrimPrefix(field, monthPrefix)] = int(n)
		}
	}
	return r
}
