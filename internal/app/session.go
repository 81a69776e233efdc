package app

import (
	"sync"
	"time"

	"collab-quiz-service/internal/domain"
)

// Session is the in-memory authority for one room playing one quiz. All
// mutations go through its methods; Advance is the only writer of the
// question cursor and status, so those fields never regress.
type Session struct {
	roomID    string
	hostID    string
	quiz      domain.Quiz
	settings  domain.SessionSettings
	resolver  Resolver
	createdAt time.Time
	now       func() time.Time

	mu           sync.RWMutex
	status       domain.SessionStatus
	current      int
	groupScore   int
	participants map[string]*domain.Participant
	joinOrder    []string
	suggestions  map[int][]*suggestionEntry
	subscribers  map[chan Event]struct{}
}

func newSession(roomID, hostID string, quiz domain.Quiz, settings domain.SessionSettings, resolver Resolver, now func() time.Time) *Session {
	return &Session{
		roomID:       roomID,
		hostID:       hostID,
		quiz:         quiz,
		settings:     settings,
		resolver:     resolver,
		createdAt:    now(),
		now:          now,
		status:       domain.StatusWaiting,
		participants: make(map[string]*domain.Participant),
		suggestions:  make(map[int][]*suggestionEntry),
		subscribers:  make(map[chan Event]struct{}),
	}
}

func (s *Session) RoomID() string   { return s.roomID }
func (s *Session) HostID() string   { return s.hostID }
func (s *Session) QuizID() string   { return s.quiz.ID }
func (s *Session) Settings() domain.SessionSettings { return s.settings }

func (s *Session) Status() domain.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) GroupScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupScore
}

// Join adds a participant while the room is waiting. Re-adding an identity
// that is already in the room only refreshes its liveness flag and is valid
// in any status, so reconnects during a game are harmless.
func (s *Session) Join(userID, displayName string) (RoomState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.participants[userID]; ok {
		p.Connected = true
		if displayName != "" {
			p.DisplayName = displayName
		}
		return s.snapshotLocked(), nil
	}

	if s.status != domain.StatusWaiting {
		return RoomState{}, domain.ErrInvalidState
	}
	if s.settings.MaxPlayers > 0 && len(s.participants) >= s.settings.MaxPlayers {
		return RoomState{}, domain.ErrRoomFull
	}

	p := &domain.Participant{
		UserID:      userID,
		DisplayName: displayName,
		Connected:   true,
		JoinedAt:    s.now(),
	}
	s.participants[userID] = p
	s.joinOrder = append(s.joinOrder, userID)

	s.broadcastLocked(Event{Type: EventPlayerJoined, Payload: PlayerJoinedPayload{
		Player:  *p,
		Players: s.playersLocked(),
	}})
	return s.snapshotLocked(), nil
}

// Leave removes a participant in any status and notifies the room. An empty
// room is not torn down here; see Advance for the empty-room policy.
func (s *Session) Leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[userID]; !ok {
		return
	}
	delete(s.participants, userID)
	for i, id := range s.joinOrder {
		if id == userID {
			s.joinOrder = append(s.joinOrder[:i], s.joinOrder[i+1:]...)
			break
		}
	}

	s.broadcastLocked(Event{Type: EventPlayerLeft, Payload: PlayerLeftPayload{
		UserID:  userID,
		Players: s.playersLocked(),
	}})
}

// Start transitions waiting -> in_progress and announces question 0. Only
// the host may start; anyone else gets ErrForbidden and the status is
// untouched.
func (s *Session) Start(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != s.hostID {
		return domain.ErrForbidden
	}
	if s.status != domain.StatusWaiting {
		return domain.ErrInvalidState
	}
	if len(s.quiz.Questions) == 0 {
		return domain.ErrInvalidState
	}

	s.status = domain.StatusInProgress
	s.broadcastQuestionLocked()
	return nil
}

// Suggest records a candidate answer for the active question. A repeated
// answer value merges into the existing entry's voter set instead of
// creating a duplicate, so each (question, answer) pair has one entry.
func (s *Session) Suggest(userID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress {
		return domain.ErrInvalidState
	}
	if _, ok := s.participants[userID]; !ok {
		return domain.ErrNotParticipant
	}

	entries := s.suggestions[s.current]
	for _, entry := range entries {
		if entry.answer == answer {
			entry.voters[userID] = struct{}{}
			s.broadcastLocked(Event{Type: EventVoteUpdated, Payload: VoteUpdatedPayload{
				Index:  s.current,
				Answer: answer,
				Votes:  len(entry.voters),
			}})
			return nil
		}
	}

	entry := &suggestionEntry{
		answer:      answer,
		suggestedBy: userID,
		voters:      map[string]struct{}{userID: {}},
	}
	s.suggestions[s.current] = append(entries, entry)
	s.broadcastLocked(Event{Type: EventNewSuggestion, Payload: NewSuggestionPayload{
		Index:      s.current,
		Suggestion: entry.view(),
	}})
	return nil
}

// AdvanceResult reports what a scheduler-driven advance did.
type AdvanceResult struct {
	// Stale means the captured question index no longer matched live state;
	// nothing happened.
	Stale     bool
	Finished  bool
	NextIndex int
	Outcome   RoundOutcome
}

// Advance resolves the round at expectedIndex and moves the cursor forward.
// It is the staleness gate for deferred triggers: a trigger armed for an
// index the session has already passed, or firing after the session left
// in_progress, is a no-op. A room that emptied mid-game finishes at its next
// advance rather than consuming timers forever.
func (s *Session) Advance(expectedIndex int) AdvanceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress || s.current != expectedIndex {
		return AdvanceResult{Stale: true}
	}

	question := s.quiz.Questions[s.current]
	outcome := s.resolver.Resolve(s.suggestions[s.current], question.CorrectAnswer)
	s.groupScore += outcome.Awarded

	s.broadcastLocked(Event{Type: EventQuestionResult, Payload: QuestionResultPayload{
		Index:         s.current,
		CorrectAnswer: question.CorrectAnswer,
		GroupAnswer:   outcome.GroupAnswer,
		Correct:       outcome.Correct,
		GroupScore:    s.groupScore,
	}})

	s.current++
	if s.current >= len(s.quiz.Questions) || len(s.participants) == 0 {
		s.status = domain.StatusFinished
		s.broadcastLocked(Event{Type: EventQuizFinished, Payload: QuizFinishedPayload{
			GroupScore:     s.groupScore,
			TotalQuestions: len(s.quiz.Questions),
		}})
		return AdvanceResult{Finished: true, Outcome: outcome}
	}

	s.broadcastQuestionLocked()
	return AdvanceResult{NextIndex: s.current, Outcome: outcome}
}

// Subscribe returns a channel receiving this session's events. The caller
// must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns a client-safe copy of the session state.
func (s *Session) Snapshot() RoomState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Players returns the current participants in join order.
func (s *Session) Players() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playersLocked()
}

func (s *Session) broadcastQuestionLocked() {
	question := s.quiz.Questions[s.current]
	s.broadcastLocked(Event{Type: EventNewQuestion, Payload: NewQuestionPayload{
		Index:     s.current,
		Question:  question.Text,
		Options:   question.Options,
		TimeLimit: s.settings.TimePerQuestionSec,
	}})
}

func (s *Session) broadcastLocked(event Event) {
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Drop the oldest event rather than block the room on one slow
			// subscriber.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

func (s *Session) snapshotLocked() RoomState {
	return RoomState{
		RoomID:          s.roomID,
		QuizID:          s.quiz.ID,
		QuizTitle:       s.quiz.Title,
		HostID:          s.hostID,
		Status:          s.status,
		CurrentQuestion: s.current,
		TotalQuestions:  len(s.quiz.Questions),
		GroupScore:      s.groupScore,
		Players:         s.playersLocked(),
		Settings:        s.settings,
	}
}

func (s *Session) playersLocked() []domain.Participant {
	players := make([]domain.Participant, 0, len(s.participants))
	for _, id := range s.joinOrder {
		if p, ok := s.participants[id]; ok {
			players = append(players, *p)
		}
	}
	return players
}
