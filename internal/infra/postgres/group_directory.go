package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-service/internal/domain"
)

// GroupDirectory reads trivia group rosters.
type GroupDirectory struct {
	pool *pgxpool.Pool
}

func NewGroupDirectory(pool *pgxpool.Pool) *GroupDirectory {
	return &GroupDirectory{pool: pool}
}

func (d *GroupDirectory) GetGroup(ctx context.Context, groupID string) (domain.TriviaGroup, error) {
	var g domain.TriviaGroup
	err := d.pool.QueryRow(ctx, `
		SELECT g.id, g.name, g.captain_id, COALESCE(g.patron_id, ''),
		       COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM trivia_groups g
		LEFT JOIN trivia_group_members m ON m.group_id = g.id
		WHERE g.id = $1
		GROUP BY g.id`, groupID).Scan(&g.ID, &g.Name, &g.CaptainID, &g.PatronID, &g.MemberIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TriviaGroup{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.TriviaGroup{}, fmt.Errorf("load group: %w", err)
	}
	return g, nil
}

// SaveGroup replaces the group and its member list in one transaction.
func (d *GroupDirectory) SaveGroup(ctx context.Context, g domain.TriviaGroup) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO trivia_groups (id, name, captain_id, patron_id) VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, captain_id = EXCLUDED.captain_id, patron_id = EXCLUDED.patron_id`,
		g.ID, g.Name, g.CaptainID, g.PatronID)
	if err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM trivia_group_members WHERE group_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for _, userID := range g.MemberIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO trivia_group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, g.ID, userID); err != nil {
			return fmt.Errorf("add member %s: %w", userID, err)
		}
	}
	return tx.Commit(ctx)
}
