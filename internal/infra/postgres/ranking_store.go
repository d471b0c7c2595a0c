package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"trivia-service/internal/domain"
)

type rankingModel struct {
	bun.BaseModel `bun:"table:rankings"`

	OwnerKind string         `bun:"owner_kind,pk"`
	OwnerID   string         `bun:"owner_id,pk"`
	Points    int            `bun:"points,notnull"`
	Penalty   int            `bun:"penalty,notnull"`
	Metadata  map[string]int `bun:"metadata,type:jsonb,notnull"`
	UpdatedAt time.Time      `bun:"updated_at,notnull"`
}

func (m rankingModel) toDomain() domain.Ranking {
	monthly := m.Metadata
	if monthly == nil {
		monthly = map[string]int{}
	}
	return domain.Ranking{
		Owner:     domain.Owner{Kind: domain.OwnerKind(m.OwnerKind), ID: m.OwnerID},
		Points:    m.Points,
		Penalty:   m.Penalty,
		Monthly:   monthly,
		UpdatedAt: m.UpdatedAt,
	}
}

// RankingStore keeps one row per owner. Accumulate is a single upsert, so the row
// lock serializes concurrent additions.
type RankingStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewRankingStore(db *bun.DB) *RankingStore {
	return &RankingStore{db: db, clock: time.Now}
}

const accumulateSQL = `
	INSERT INTO rankings AS r (owner_kind, owner_id, points, penalty, metadata, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_kind, owner_id) DO UPDATE SET
		points = r.points + EXCLUDED.points,
		penalty = r.penalty + EXCLUDED.penalty,
		metadata = CASE WHEN ? = '' THEN r.metadata
			ELSE jsonb_set(r.metadata, ARRAY[?::text], to_jsonb(COALESCE((r.metadata ->> ?::text)::int, 0) + ?::int))
		END,
		updated_at = EXCLUDED.updated_at
	RETURNING points, penalty, metadata, updated_at`

func (s *RankingStore) Accumulate(ctx context.Context, owner domain.Owner, delta domain.RankingDelta) (domain.Ranking, error) {
	initial := map[string]int{}
	if delta.Month != "" {
		initial[delta.Month] = delta.Points
	}
	seed, err := json.Marshal(initial)
	if err != nil {
		return domain.Ranking{}, err
	}

	var (
		r   = domain.Ranking{Owner: owner}
		raw []byte
	)
	err = s.db.QueryRowContext(ctx, accumulateSQL,
		string(owner.Kind), owner.ID, delta.Points, delta.Penalty, string(seed), s.clock().UTC(),
		delta.Month, delta.Month, delta.Month, delta.Points,
	).Scan(&r.Points, &r.Penalty, &raw, &r.UpdatedAt)
	if err != nil {
		return domain.Ranking{}, fmt.Errorf("upsert ranking: %w", err)
	}
	if err := json.Unmarshal(raw, &r.Monthly); err != nil {
		return domain.Ranking{}, fmt.Errorf("decode ranking metadata: %w", err)
	}
	return r, nil
}

func (s *RankingStore) Get(ctx context.Context, owner domain.Owner) (domain.Ranking, error) {
	var m rankingModel
	err := s.db.NewSelect().
		Model(&m).
		Where("owner_kind = ?", string(owner.Kind)).
		Where("owner_id = ?", owner.ID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ranking{}, domain.ErrRankingNotFound
	}
	if err != nil {
		return domain.Ranking{}, err
	}
	return m.toDomain(), nil
}

func (s *RankingStore) Top(ctx context.Context, kind domain.OwnerKind, limit int) ([]domain.Ranking, error) {
	var rows []rankingModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("owner_kind = ?", string(kind)).
		OrderExpr("points DESC, penalty ASC, owner_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Ranking, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}
