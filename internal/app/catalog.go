package app

import (
	"context"
	"strings"

	"school-quiz-service/internal/domain"
)

// QuizFilter narrows the catalog. Empty fields match everything.
type QuizFilter struct {
	Search  string
	Subject string
}

func (f QuizFilter) matches(quiz domain.Quiz) bool {
	if f.Subject != "" && !strings.EqualFold(quiz.Subject, f.Subject) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(quiz.Title), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// QuizEntry is one catalog row with its status derived at listing time.
type QuizEntry struct {
	Quiz     domain.Quiz
	Status   domain.QuizStatus
	IsActive bool
}

// QuizDetail is the pre-start view of a quiz for one participant.
type QuizDetail struct {
	Quiz              domain.Quiz
	Timing            QuizTiming
	CanAccess         bool
	HasAttempted      bool
	AttemptsRemaining int
	Participants      int
	AverageScore      float64
}

// ListQuizzes returns the quizzes a participant may open. Admins and teachers
// see the whole catalog; everyone else only sees quizzes that are running now
// and pass the eligibility check.
func (s *QuizService) ListQuizzes(ctx context.Context, participant domain.Participant, filter QuizFilter) ([]QuizEntry, error) {
	ids, err := s.quizzes.ListQuizIDs(ctx)
	if err != nil {
		return nil, err
	}
	seesAll := participant.Role == domain.RoleAdmin || participant.Role == domain.RoleTeacher

	var profile domain.LevelProfile
	if !seesAll {
		if profile, err = s.profileFor(ctx, participant); err != nil {
			return nil, err
		}
	}

	now := s.now()
	out := make([]QuizEntry, 0, len(ids))
	for _, id := range ids {
		quiz, err := s.quizzes.GetQuiz(ctx, id)
		if err != nil {
			return nil, err
		}
		if !filter.matches(quiz) {
			continue
		}
		active := quiz.IsActive(now)
		if !seesAll && !(active && CanAccess(participant, profile, quiz, now)) {
			continue
		}
		out = append(out, QuizEntry{Quiz: quiz, Status: quiz.CurrentStatus(now), IsActive: active})
	}
	return out, nil
}

// Detail gathers access, attempts and aggregate scores for a quiz.
func (s *QuizService) Detail(ctx context.Context, participant domain.Participant, quizID string) (QuizDetail, error) {
	participant = withKind(participant)
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizDetail{}, err
	}
	timing, err := s.Timing(ctx, quizID)
	if err != nil {
		return QuizDetail{}, err
	}
	canAccess, err := s.CanAccess(ctx, participant, quizID)
	if err != nil {
		return QuizDetail{}, err
	}
	finished, err := s.sessions.CountFinished(ctx, quizID, participant)
	if err != nil {
		return QuizDetail{}, err
	}
	results, err := s.sessions.ListResults(ctx, quizID)
	if err != nil {
		return QuizDetail{}, err
	}

	detail := QuizDetail{
		Quiz:              quiz,
		Timing:            timing,
		CanAccess:         canAccess,
		HasAttempted:      finished > 0,
		AttemptsRemaining: max(quiz.MaxAttempts-finished, 0),
		Participants:      len(results),
	}
	if len(results) > 0 {
		total := 0
		for _, r := range results {
			total += r.Score
		}
		detail.AverageScore = float64(total) / float64(len(results))
	}
	return detail, nil
}
