package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"collab-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SessionStore persists session records in the quiz_sessions table.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) CreateSkeleton(ctx context.Context, rec domain.SessionRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	settings, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (room_id, quiz_id, host_id, status, score, players, settings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.RoomID, rec.QuizID, rec.HostID, string(rec.Status), rec.Score, players, settings, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session skeleton: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, roomID string) (*domain.SessionRecord, error) {
	var (
		rec         domain.SessionRecord
		status      string
		rawPlayers  []byte
		rawSettings []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT room_id, quiz_id, host_id, status, score, players, settings, created_at
		FROM quiz_sessions WHERE room_id=$1`, roomID,
	).Scan(&rec.RoomID, &rec.QuizID, &rec.HostID, &status, &rec.Score, &rawPlayers, &rawSettings, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session record: %w", err)
	}

	rec.Status = domain.SessionStatus(status)
	if err := json.Unmarshal(rawPlayers, &rec.Players); err != nil {
		return nil, fmt.Errorf("unmarshal players: %w", err)
	}
	if err := json.Unmarshal(rawSettings, &rec.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &rec, nil
}

func (s *SessionStore) UpdateStatusAndScore(ctx context.Context, roomID string, status domain.SessionStatus, score int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE quiz_sessions SET status=$2, score=$3 WHERE room_id=$1`,
		roomID, string(status), score,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

func (s *SessionStore) AddPlayer(ctx context.Context, roomID, userID string) error {
	// The jsonb ? operator keeps the append idempotent.
	_, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions
		SET players = CASE WHEN players ? $2 THEN players ELSE players || to_jsonb($2::text) END
		WHERE room_id=$1`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("append session player: %w", err)
	}
	return nil
}
