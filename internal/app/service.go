package app

import (
	"context"
	"time"

	"collab-quiz-service/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ProfileStore is the identity collaborator: display-name lookup plus the
// XP-credit side effect issued at settlement.
type ProfileStore interface {
	FindProfile(ctx context.Context, userID string) (domain.Profile, error)
	CreditXP(ctx context.Context, userID string, amount int) error
}

// Config carries the session policy knobs. Zero values fall back to
// Defaults().
type Config struct {
	DefaultSettings  domain.SessionSettings
	PointsPerCorrect int
	NormalizeAnswers bool
	// FinishedGrace is how long a finished session stays readable in the
	// registry before removal.
	FinishedGrace time.Duration
	// WaitingTTL bounds how long a never-started room is kept in memory.
	WaitingTTL time.Duration
}

// Defaults returns the session policy used when config leaves it unset.
func Defaults() Config {
	return Config{
		DefaultSettings:  domain.SessionSettings{MaxPlayers: 10, TimePerQuestionSec: 30},
		PointsPerCorrect: 100,
		FinishedGrace:    time.Minute,
		WaitingTTL:       time.Hour,
	}
}

// Service contains the collaborative session use cases. The transport calls
// into it; the scheduler calls back into it; it never calls the transport.
type Service struct {
	registry *Registry
	records  SessionStore
	profiles ProfileStore
	sched    *scheduler
	grace    time.Duration
	defaults domain.SessionSettings
}

func NewService(quizzes QuizRepository, records SessionStore, profiles ProfileStore, presence Presence, clock clockwork.Clock, cfg Config) *Service {
	defaults := Defaults()
	if cfg.DefaultSettings.MaxPlayers == 0 {
		cfg.DefaultSettings.MaxPlayers = defaults.DefaultSettings.MaxPlayers
	}
	if cfg.DefaultSettings.TimePerQuestionSec == 0 {
		cfg.DefaultSettings.TimePerQuestionSec = defaults.DefaultSettings.TimePerQuestionSec
	}
	if cfg.PointsPerCorrect == 0 {
		cfg.PointsPerCorrect = defaults.PointsPerCorrect
	}
	if cfg.FinishedGrace == 0 {
		cfg.FinishedGrace = defaults.FinishedGrace
	}
	if cfg.WaitingTTL == 0 {
		cfg.WaitingTTL = defaults.WaitingTTL
	}

	resolver := Resolver{
		NormalizeAnswers: cfg.NormalizeAnswers,
		PointsPerCorrect: cfg.PointsPerCorrect,
	}

	s := &Service{
		records:  records,
		profiles: profiles,
		grace:    cfg.FinishedGrace,
		defaults: cfg.DefaultSettings,
	}
	s.registry = NewRegistry(quizzes, records, presence, clock, resolver, cfg.WaitingTTL)
	s.sched = newScheduler(clock, s.advance)
	return s
}

// ResolveIdentity maps a credential subject to a profile; the gateway calls
// this before any room interaction is permitted.
func (s *Service) ResolveIdentity(ctx context.Context, userID string) (domain.Profile, error) {
	return s.profiles.FindProfile(ctx, userID)
}

// CreateRoom builds a session for the quiz with the caller as host and joins
// them to it. An empty roomID gets a generated one.
func (s *Service) CreateRoom(ctx context.Context, userID, quizID, roomID string, settings *domain.SessionSettings) (*Session, RoomState, error) {
	profile, err := s.profiles.FindProfile(ctx, userID)
	if err != nil {
		return nil, RoomState{}, err
	}

	effective := s.defaults
	if settings != nil {
		if settings.MaxPlayers > 0 {
			effective.MaxPlayers = settings.MaxPlayers
		}
		if settings.TimePerQuestionSec > 0 {
			effective.TimePerQuestionSec = settings.TimePerQuestionSec
		}
	}

	session, err := s.registry.Create(ctx, quizID, userID, roomID, effective)
	if err != nil {
		return nil, RoomState{}, err
	}

	state, err := session.Join(userID, profile.DisplayName)
	if err != nil {
		// Recovered sessions may no longer admit the caller.
		return nil, RoomState{}, err
	}
	log.Info().Str("room_id", session.RoomID()).Str("quiz_id", quizID).Str("host_id", userID).Msg("room created")
	return session, state, nil
}

// JoinRoom adds the user to the room and appends them to the persisted
// player list. A persistence failure on the append is logged, not fatal.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string) (*Session, RoomState, error) {
	session, ok := s.registry.Get(roomID)
	if !ok {
		return nil, RoomState{}, domain.ErrRoomNotFound
	}

	profile, err := s.profiles.FindProfile(ctx, userID)
	if err != nil {
		return nil, RoomState{}, err
	}

	state, err := session.Join(userID, profile.DisplayName)
	if err != nil {
		return nil, RoomState{}, err
	}

	if err := s.records.AddPlayer(ctx, roomID, userID); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("failed to persist player join")
	}
	return session, state, nil
}

// LeaveRoom drops the user from the room, if both still exist.
func (s *Service) LeaveRoom(roomID, userID string) {
	if session, ok := s.registry.Get(roomID); ok {
		session.Leave(userID)
	}
}

// StartQuiz is the host-only waiting -> in_progress transition. It arms the
// round timer for question 0; from here on progress is timer-driven, never
// participant-driven.
func (s *Service) StartQuiz(roomID, userID string) error {
	session, ok := s.registry.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := session.Start(userID); err != nil {
		return err
	}
	log.Info().Str("room_id", roomID).Msg("quiz started")
	s.armRound(session, 0)
	return nil
}

// SuggestAnswer casts the user's suggestion for the active question.
func (s *Service) SuggestAnswer(roomID, userID, answer string) error {
	session, ok := s.registry.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return session.Suggest(userID, answer)
}

// GetRoom exposes registry lookup to the transport.
func (s *Service) GetRoom(roomID string) (*Session, bool) {
	return s.registry.Get(roomID)
}

func (s *Service) armRound(session *Session, questionIndex int) {
	limit := time.Duration(session.Settings().TimePerQuestionSec) * time.Second
	s.sched.Arm(session.RoomID(), questionIndex, limit)
}

// advance is the scheduler callback. Stale triggers (session gone, already
// past the captured index, or no longer in progress) do nothing.
func (s *Service) advance(roomID string, questionIndex int) {
	session, ok := s.registry.Get(roomID)
	if !ok {
		return
	}

	result := session.Advance(questionIndex)
	switch {
	case result.Stale:
	case result.Finished:
		s.settle(session)
	default:
		s.armRound(session, result.NextIndex)
	}
}

// settle distributes a flat floor(score/participants) XP split, persists the
// terminal record, and schedules the room's removal after the grace window.
// One failed credit is logged and skipped; it never blocks the others or the
// terminal persist.
func (s *Service) settle(session *Session) {
	ctx := context.Background()
	roomID := session.RoomID()
	score := session.GroupScore()
	players := session.Players()

	if len(players) > 0 {
		reward := score / len(players)
		if reward > 0 {
			for _, p := range players {
				if err := s.profiles.CreditXP(ctx, p.UserID, reward); err != nil {
					log.Warn().Err(err).Str("room_id", roomID).Str("user_id", p.UserID).Int("xp", reward).Msg("xp credit failed, skipping participant")
				}
			}
		}
	}

	if err := s.records.UpdateStatusAndScore(ctx, roomID, domain.StatusFinished, score); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to persist final session state")
	}

	log.Info().Str("room_id", roomID).Int("score", score).Int("players", len(players)).Msg("session settled")
	s.registry.ScheduleRemoval(roomID, s.grace)
}
