package postgres

import (
	"context"
	"errors"
	"fmt"

	"collab-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProfileStore backs identity lookups and XP credits with the profiles table.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) FindProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, xp FROM profiles WHERE id=$1`, userID,
	).Scan(&profile.ID, &profile.DisplayName, &profile.XP)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func (s *ProfileStore) CreditXP(ctx context.Context, userID string, amount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET xp = xp + $2 WHERE id=$1`, userID, amount,
	)
	if err != nil {
		return fmt.Errorf("credit xp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
