package domain

import "time"

// SessionStatus is the lifecycle state of a collaborative session.
// Transitions are monotonic: waiting -> in_progress -> finished.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusFinished   SessionStatus = "finished"
)

// Question is a single quiz question with its accepted answer.
type Question struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// Quiz is the question set a session plays through. Sessions snapshot it once
// at creation; later edits to the source quiz never reach a running session.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Participant is one player inside a session. Connected tracks transport
// liveness only; the participant record itself survives reconnects.
type Participant struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// SessionSettings are fixed at room creation.
type SessionSettings struct {
	MaxPlayers         int `json:"maxPlayers"`
	TimePerQuestionSec int `json:"timePerQuestionSec"`
}

// SessionRecord is the persisted shape of a session: a skeleton row written
// at creation and finalized with status and score at settlement.
type SessionRecord struct {
	RoomID    string          `json:"roomId"`
	QuizID    string          `json:"quizId"`
	HostID    string          `json:"hostId"`
	Status    SessionStatus   `json:"status"`
	Score     int             `json:"score"`
	Players   []string        `json:"players"`
	Settings  SessionSettings `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Profile is the identity collaborator's view of a user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	XP          int    `json:"xp"`
}
