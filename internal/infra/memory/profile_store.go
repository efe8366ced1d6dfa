package memory

import (
	"context"
	"sync"

	"school-quiz-service/internal/domain"
)

// ProfileStore is an in-memory implementation of app.ProfileRepository.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.LevelProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domain.LevelProfile)}
}

func (s *ProfileStore) EnsureProfile(_ context.Context, participantID string) (domain.LevelProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile, ok := s.profiles[participantID]; ok {
		return profile, nil
	}
	profile := domain.DefaultProfile(participantID)
	s.profiles[participantID] = profile
	return profile, nil
}

// SetProfile replaces a participant's profile.
func (s *ProfileStore) SetProfile(_ context.Context, profile domain.LevelProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ParticipantID] = profile
	return nil
}
