package app

import (
	"time"

	"school-quiz-service/internal/domain"
)

// CanAccess decides whether a participant may view or start a quiz at now.
// Only students are gated; the caller must supply an existing profile.
func CanAccess(participant domain.Participant, profile domain.LevelProfile, quiz domain.Quiz, now time.Time) bool {
	if participant.Role != domain.RoleStudent {
		return true
	}
	return levelMatches(profile, quiz) && quiz.IsActive(now)
}

func levelMatches(profile domain.LevelProfile, quiz domain.Quiz) bool {
	return quiz.LevelType == profile.LevelType &&
		quiz.StartLevel <= profile.CurrentLevel &&
		profile.CurrentLevel <= quiz.EndLevel
}
