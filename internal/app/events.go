package app

import "collab-quiz-service/internal/domain"

// Event is one broadcast unit delivered to every subscriber of a session.
// Type names are the wire-level event names the transport relays verbatim.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventPlayerJoined   = "player-joined"
	EventPlayerLeft     = "player-left"
	EventNewQuestion    = "new-question"
	EventNewSuggestion  = "new-suggestion"
	EventVoteUpdated    = "vote-updated"
	EventQuestionResult = "question-result"
	EventQuizFinished   = "quiz-finished"
)

// RoomState is a point-in-time snapshot of a session, safe to hand to clients.
type RoomState struct {
	RoomID          string                 `json:"roomId"`
	QuizID          string                 `json:"quizId"`
	QuizTitle       string                 `json:"quizTitle"`
	HostID          string                 `json:"hostId"`
	Status          domain.SessionStatus   `json:"status"`
	CurrentQuestion int                    `json:"currentQuestion"`
	TotalQuestions  int                    `json:"totalQuestions"`
	GroupScore      int                    `json:"groupScore"`
	Players         []domain.Participant   `json:"players"`
	Settings        domain.SessionSettings `json:"settings"`
}

// SuggestionView is the client-facing shape of one suggestion entry.
type SuggestionView struct {
	Answer      string   `json:"answer"`
	SuggestedBy string   `json:"suggestedBy"`
	Voters      []string `json:"voters"`
}

type PlayerJoinedPayload struct {
	Player  domain.Participant   `json:"player"`
	Players []domain.Participant `json:"players"`
}

type PlayerLeftPayload struct {
	UserID  string               `json:"playerId"`
	Players []domain.Participant `json:"players"`
}

type NewQuestionPayload struct {
	Index     int      `json:"index"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimitSec"`
}

type NewSuggestionPayload struct {
	Index      int            `json:"index"`
	Suggestion SuggestionView `json:"suggestion"`
}

type VoteUpdatedPayload struct {
	Index  int    `json:"index"`
	Answer string `json:"answer"`
	Votes  int    `json:"votes"`
}

type QuestionResultPayload struct {
	Index         int     `json:"index"`
	CorrectAnswer string  `json:"correctAnswer"`
	GroupAnswer   *string `json:"groupAnswer"`
	Correct       bool    `json:"isCorrect"`
	GroupScore    int     `json:"groupScore"`
}

type QuizFinishedPayload struct {
	GroupScore     int `json:"groupScore"`
	TotalQuestions int `json:"totalQuestions"`
}
