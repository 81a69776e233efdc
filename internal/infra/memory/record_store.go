package memory

import (
	"context"
	"sync"

	"collab-quiz-service/internal/domain"
)

// RecordStore is an in-memory implementation of app.SessionStore, used in
// tests and when no database is configured.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.SessionRecord
}

func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]domain.SessionRecord)}
}

func (s *RecordStore) CreateSkeleton(_ context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.RoomID]; ok {
		return domain.ErrDuplicateRoom
	}
	s.records[rec.RoomID] = rec
	return nil
}

func (s *RecordStore) Get(_ context.Context, roomID string) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[roomID]
	if !ok {
		return nil, nil
	}
	copied := rec
	copied.Players = append([]string(nil), rec.Players...)
	return &copied, nil
}

func (s *RecordStore) UpdateStatusAndScore(_ context.Context, roomID string, status domain.SessionStatus, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	rec.Status = status
	rec.Score = score
	s.records[roomID] = rec
	return nil
}

func (s *RecordStore) AddPlayer(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for _, id := range rec.Players {
		if id == userID {
			return nil
		}
	}
	rec.Players = append(rec.Players, userID)
	s.records[roomID] = rec
	return nil
}
