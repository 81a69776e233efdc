package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collab-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionStore persists session records: a skeleton at creation, player
// appends on join, and the terminal status/score at settlement.
type SessionStore interface {
	CreateSkeleton(ctx context.Context, rec domain.SessionRecord) error
	Get(ctx context.Context, roomID string) (*domain.SessionRecord, error)
	UpdateStatusAndScore(ctx context.Context, roomID string, status domain.SessionStatus, score int) error
	AddPlayer(ctx context.Context, roomID, userID string) error
}

// Presence marks active rooms in a shared store so operators (or a future
// multi-instance router) can see which rooms this process owns.
type Presence interface {
	MarkActive(ctx context.Context, roomID string)
	ClearActive(ctx context.Context, roomID string)
}

// Registry owns the canonical in-memory session per room id. Everything that
// mutates a session goes through the *Session it hands out; nothing else may
// hold a mutable copy.
type Registry struct {
	quizzes    QuizRepository
	records    SessionStore
	presence   Presence
	clock      clockwork.Clock
	resolver   Resolver
	waitingTTL time.Duration

	mu    sync.RWMutex
	rooms map[string]*Session
}

func NewRegistry(quizzes QuizRepository, records SessionStore, presence Presence, clock clockwork.Clock, resolver Resolver, waitingTTL time.Duration) *Registry {
	return &Registry{
		quizzes:    quizzes,
		records:    records,
		presence:   presence,
		clock:      clock,
		resolver:   resolver,
		waitingTTL: waitingTTL,
		rooms:      make(map[string]*Session),
	}
}

// Create snapshots the quiz, persists a skeleton record, and registers a new
// session. A caller-supplied room id that collides with a live session
// returns that session instead; an id that exists only in storage is
// reconstructed from the persisted record, which covers a process restart
// that never got to clean up.
func (r *Registry) Create(ctx context.Context, quizID, hostID, roomID string, settings domain.SessionSettings) (*Session, error) {
	if roomID != "" {
		r.mu.RLock()
		existing, ok := r.rooms[roomID]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		rec, err := r.records.Get(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("look up session record: %w", err)
		}
		if rec != nil {
			return r.recover(ctx, rec)
		}
	} else {
		roomID = uuid.NewString()[:8]
	}

	quiz, err := r.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	session := newSession(roomID, hostID, quiz, settings, r.resolver, r.clock.Now)
	if err := r.records.CreateSkeleton(ctx, domain.SessionRecord{
		RoomID:    roomID,
		QuizID:    quizID,
		HostID:    hostID,
		Status:    domain.StatusWaiting,
		Players:   []string{hostID},
		Settings:  settings,
		CreatedAt: session.createdAt,
	}); err != nil {
		return nil, fmt.Errorf("persist session skeleton: %w", err)
	}

	r.register(ctx, session)
	return session, nil
}

// recover rebuilds an in-memory session from its persisted record. The quiz
// is re-snapshotted; recorded status and score carry over so a finished room
// stays readable until its grace removal.
func (r *Registry) recover(ctx context.Context, rec *domain.SessionRecord) (*Session, error) {
	quiz, err := r.quizzes.GetQuiz(ctx, rec.QuizID)
	if err != nil {
		return nil, err
	}

	session := newSession(rec.RoomID, rec.HostID, quiz, rec.Settings, r.resolver, r.clock.Now)
	session.status = rec.Status
	session.groupScore = rec.Score

	r.register(ctx, session)
	log.Info().Str("room_id", rec.RoomID).Str("status", string(rec.Status)).Msg("recovered session from persisted record")
	return session, nil
}

func (r *Registry) register(ctx context.Context, session *Session) {
	r.mu.Lock()
	r.rooms[session.roomID] = session
	r.mu.Unlock()

	if r.presence != nil {
		r.presence.MarkActive(ctx, session.roomID)
	}

	// Reap rooms whose host never starts the game.
	if r.waitingTTL > 0 {
		roomID := session.roomID
		r.clock.AfterFunc(r.waitingTTL, func() {
			if s, ok := r.Get(roomID); ok && s.Status() == domain.StatusWaiting {
				log.Info().Str("room_id", roomID).Msg("dropping abandoned waiting room")
				r.Remove(roomID)
			}
		})
	}
}

func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.rooms[roomID]
	return session, ok
}

// Remove drops the in-memory entry. Persisted records are untouched.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()

	if r.presence != nil {
		r.presence.ClearActive(context.Background(), roomID)
	}
}

// ScheduleRemoval drops the room after a grace window, leaving time for late
// reads of final state.
func (r *Registry) ScheduleRemoval(roomID string, after time.Duration) {
	r.clock.AfterFunc(after, func() {
		log.Debug().Str("room_id", roomID).Msg("removing finished session after grace period")
		r.Remove(roomID)
	})
}
