package postgres

import (
	"context"
	"fmt"

	"school-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

// ProfileStore keeps level profiles in Postgres.
type ProfileStore struct {
	db *bun.DB
}

func NewProfileStore(db *bun.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// EnsureProfile inserts the default profile unless one exists, then reads it back.
func (s *ProfileStore) EnsureProfile(ctx context.Context, participantID string) (domain.LevelProfile, error) {
	def := domain.DefaultProfile(participantID)
	row := profileRow{
		ParticipantID: def.ParticipantID,
		LevelType:     string(def.LevelType),
		CurrentLevel:  def.CurrentLevel,
	}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (participant_id) DO NOTHING").Exec(ctx); err != nil {
		return domain.LevelProfile{}, fmt.Errorf("ensure profile: %w", err)
	}

	var stored profileRow
	if err := s.db.NewSelect().Model(&stored).Where("participant_id = ?", participantID).Scan(ctx); err != nil {
		return domain.LevelProfile{}, fmt.Errorf("load profile: %w", err)
	}
	return stored.toDomain(), nil
}

// SetProfile creates or replaces a participant's profile.
func (s *ProfileStore) SetProfile(ctx context.Context, profile domain.LevelProfile) error {
	row := profileRow{
		ParticipantID: profile.ParticipantID,
		LevelType:     string(profile.LevelType),
		CurrentLevel:  profile.CurrentLevel,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (participant_id) DO UPDATE").
		Set("level_type = EXCLUDED.level_type").
		Set("current_level = EXCLUDED.current_level").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}
