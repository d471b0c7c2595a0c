package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"trivia-service/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type attemptModel struct {
	bun.BaseModel `bun:"table:attempts"`

	ID            string     `bun:"id,pk"`
	QuizID        string     `bun:"quiz_id,notnull"`
	OwnerKind     string     `bun:"owner_kind,notnull"`
	OwnerID       string     `bun:"owner_id,notnull"`
	InitiatedBy   string     `bun:"initiated_by,notnull"`
	AttemptNumber int        `bun:"attempt_number,notnull"`
	Status        string     `bun:"status,notnull"`
	Score         int        `bun:"score,notnull"`
	StartedAt     time.Time  `bun:"started_at,notnull"`
	CompletedAt   *time.Time `bun:"completed_at"`
}

type responseModel struct {
	bun.BaseModel `bun:"table:responses"`

	ID                string    `bun:"id,pk"`
	AttemptID         string    `bun:"attempt_id,notnull"`
	QuestionID        string    `bun:"question_id,notnull"`
	OwnerKind         string    `bun:"owner_kind,notnull"`
	OwnerID           string    `bun:"owner_id,notnull"`
	RespondedBy       string    `bun:"responded_by,notnull"`
	TextAnswer        string    `bun:"text_answer,notnull"`
	SelectedChoiceIDs []string  `bun:"selected_choice_ids,type:jsonb,notnull"`
	PointsAwarded     int       `bun:"points_awarded,notnull"`
	WrongSelected     int       `bun:"wrong_selected,notnull"`
	QuestionPenalty   int       `bun:"question_penalty,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull"`
}

// AttemptStore persists attempts and responses with bun.
// Attempt numbers come from a per (quiz, owner) counter row bumped by a single upsert.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) NextAttemptNumber(ctx context.Context, quizID string, owner domain.Owner) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attempt_counters (quiz_id, owner_kind, owner_id, last_number) VALUES (?, ?, ?, 1)
		ON CONFLICT (quiz_id, owner_kind, owner_id)
		DO UPDATE SET last_number = attempt_counters.last_number + 1
		RETURNING last_number`, quizID, string(owner.Kind), owner.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bump attempt counter: %w", err)
	}
	return n, nil
}

// SaveAttempt writes the attempt and its responses in one transaction.
func (s *AttemptStore) SaveAttempt(ctx context.Context, attempt domain.Attempt, responses []domain.Response) error {
	m := toAttemptModel(attempt)
	rows := make([]responseModel, 0, len(responses))
	for _, resp := range responses {
		resp.AttemptID = attempt.ID
		rows = append(rows, toResponseModel(resp))
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			if pgCode(err) == pgUniqueViolation {
				return domain.ErrAttemptConflict
			}
			return fmt.Errorf("insert attempt: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			switch pgCode(err) {
			case pgUniqueViolation:
				return domain.ErrDuplicateResponse
			case pgForeignKeyViolation:
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("insert responses: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var m attemptModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return m.toDomain(), nil
}

func (s *AttemptStore) ListResponses(ctx context.Context, attemptID string) ([]domain.Response, error) {
	var rows []responseModel
	err := s.db.NewSelect().Model(&rows).Where("attempt_id = ?", attemptID).OrderExpr("seq ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.Response{
			ID:                m.ID,
			AttemptID:         m.AttemptID,
			QuestionID:        m.QuestionID,
			Owner:             domain.Owner{Kind: domain.OwnerKind(m.OwnerKind), ID: m.OwnerID},
			RespondedBy:       m.RespondedBy,
			TextAnswer:        m.TextAnswer,
			SelectedChoiceIDs: m.SelectedChoiceIDs,
			PointsAwarded:     m.PointsAwarded,
			Snapshot:          domain.PenaltySnapshot{WrongSelected: m.WrongSelected, QuestionPenalty: m.QuestionPenalty},
			CreatedAt:         m.CreatedAt,
		})
	}
	return out, nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, owner domain.Owner) ([]domain.Attempt, error) {
	var rows []attemptModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("owner_kind = ?", string(owner.Kind)).
		Where("owner_id = ?", owner.ID).
		OrderExpr("started_at DESC, attempt_number DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func toAttemptModel(a domain.Attempt) attemptModel {
	return attemptModel{
		ID:            a.ID,
		QuizID:        a.QuizID,
		OwnerKind:     string(a.Owner.Kind),
		OwnerID:       a.Owner.ID,
		InitiatedBy:   a.InitiatedBy,
		AttemptNumber: a.AttemptNumber,
		Status:        string(a.Status),
		Score:         a.Score,
		StartedAt:     a.StartedAt,
		CompletedAt:   a.CompletedAt,
	}
}

func toResponseModel(r domain.Response) responseModel {
	m := responseModel{
		ID:                r.ID,
		AttemptID:         r.AttemptID,
		QuestionID:        r.QuestionID,
		OwnerKind:         string(r.Owner.Kind),
		OwnerID:           r.Owner.ID,
		RespondedBy:       r.RespondedBy,
		TextAnswer:        r.TextAnswer,
		SelectedChoiceIDs: r.SelectedChoiceIDs,
		PointsAwarded:     r.PointsAwarded,
		WrongSelected:     r.Snapshot.WrongSelected,
		QuestionPenalty:   r.Snapshot.QuestionPenalty,
		CreatedAt:         r.CreatedAt,
	}
	if m.SelectedChoiceIDs == nil {
		m.SelectedChoiceIDs = []string{}
	}
	return m
}

func (m attemptModel) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:            m.ID,
		QuizID:        m.QuizID,
		Owner:         domain.Owner{Kind: domain.OwnerKind(m.OwnerKind), ID: m.OwnerID},
		InitiatedBy:   m.InitiatedBy,
		AttemptNumber: m.AttemptNumber,
		Status:        domain.AttemptStatus(m.Status),
		Score:         m.Score,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
}

// pgCode returns the SQLSTATE of a Postgres error, or "" for anything else.
func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}
