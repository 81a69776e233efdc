package domain

import "errors"

var (
	// ErrUnauthorized is returned when a connection credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrRoomNotFound is returned when a room id does not resolve to a session.
	ErrRoomNotFound = errors.New("room not found")
	// ErrForbidden is returned when a non-host attempts a host-only action.
	ErrForbidden = errors.New("forbidden")
	// ErrRoomFull is returned when a session is at its participant cap.
	ErrRoomFull = errors.New("room is full")
	// ErrInvalidState is returned when an action is not valid for the session's status.
	ErrInvalidState = errors.New("action not valid in current session state")
	// ErrDuplicateRoom indicates a room id collision that could not be recovered.
	ErrDuplicateRoom = errors.New("room already exists")
	// ErrProfileNotFound is returned when an identity has no profile record.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrNotParticipant is returned when a user acts on a room they never joined.
	ErrNotParticipant = errors.New("participant not found in room")
)
