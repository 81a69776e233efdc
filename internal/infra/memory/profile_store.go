package memory

import (
	"context"
	"sync"

	"collab-quiz-service/internal/domain"
)

// ProfileStore is an in-memory implementation of app.ProfileStore.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewProfileStore(seed map[string]domain.Profile) *ProfileStore {
	profiles := make(map[string]domain.Profile, len(seed))
	for id, p := range seed {
		profiles[id] = p
	}
	return &ProfileStore{profiles: profiles}
}

func (s *ProfileStore) FindProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *ProfileStore) CreditXP(_ context.Context, userID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	profile.XP += amount
	s.profiles[userID] = profile
	return nil
}
