package app

import (
	"context"
	"errors"
	"time"

	"school-quiz-service/internal/domain"
)

const (
	defaultPassPercentage = 60
	topResultsLimit       = 5
)

// SessionState is what a participant sees while taking a quiz.
type SessionState struct {
	Session       domain.Session
	Questions     []domain.Question
	Answers       map[string][]string
	TimeRemaining time.Duration
	Answered      int
	Total         int
	Progress      int
	Result        *domain.Result
}

// ResultSummary is a finished session's result with its standing in the quiz.
type ResultSummary struct {
	Result            domain.Result
	Percentage        float64
	Passed            bool
	Rank              int
	TotalParticipants int
}

// QuizTiming tells clients whether a quiz is open and how long until the next transition.
type QuizTiming struct {
	Status   domain.QuizStatus
	IsActive bool
	TimeLeft time.Duration
}

// QuizStats aggregates all results of one quiz.
type QuizStats struct {
	Participants      int
	AverageScore      float64
	MaxScore          int
	MinScore          int
	AveragePercentage float64
	Passed            int
	Failed            int
	Top               []domain.Result
}

// SubjectStats aggregates a participant's results within one subject.
type SubjectStats struct {
	Count        int
	AverageScore float64
	Passed       int
	PassRate     float64
}

// ParticipantHistory aggregates all results of one participant.
type ParticipantHistory struct {
	Results           []domain.Result
	TotalQuizzes      int
	AverageScore      float64
	AveragePercentage float64
	Passed            int
	Best              *domain.Result
	BySubject         map[string]SubjectStats
}

// Summary returns a session's result with percentage, pass status and rank.
func (s *QuizService) Summary(ctx context.Context, sessionID string) (ResultSummary, error) {
	result, err := s.Result(ctx, sessionID)
	if err != nil {
		return ResultSummary{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, result.QuizID)
	if err != nil {
		return ResultSummary{}, err
	}
	results, err := s.sessions.ListResults(ctx, result.QuizID)
	if err != nil {
		return ResultSummary{}, err
	}
	rank, _, err := s.Rank(ctx, result.QuizID, result.ID)
	if err != nil {
		return ResultSummary{}, err
	}
	return ResultSummary{
		Result:            result,
		Percentage:        result.Percentage(),
		Passed:            result.Passed(quiz.PassPercentage),
		Rank:              rank,
		TotalParticipants: len(results),
	}, nil
}

// Timing reports the derived status and the time until the window opens or closes.
func (s *QuizService) Timing(ctx context.Context, quizID string) (QuizTiming, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizTiming{}, err
	}
	now := s.now()
	timing := QuizTiming{
		Status:   quiz.CurrentStatus(now),
		IsActive: quiz.IsActive(now),
	}
	switch {
	case now.Before(quiz.StartTime):
		timing.TimeLeft = quiz.StartTime.Sub(now)
	case now.Before(quiz.EndTime):
		timing.TimeLeft = quiz.EndTime.Sub(now)
	}
	return timing, nil
}

// Stats aggregates every result recorded for a quiz.
func (s *QuizService) Stats(ctx context.Context, quizID string) (QuizStats, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizStats{}, err
	}
	results, err := s.sessions.ListResults(ctx, quizID)
	if err != nil {
		return QuizStats{}, err
	}
	stats := QuizStats{Participants: len(results)}
	if len(results) == 0 {
		return stats, nil
	}

	SortResults(results)
	stats.MaxScore = results[0].Score
	stats.MinScore = results[len(results)-1].Score
	var totalScore, totalPercentage float64
	for _, r := range results {
		totalScore += float64(r.Score)
		totalPercentage += r.Percentage()
		if r.Passed(quiz.PassPercentage) {
			stats.Passed++
		}
	}
	stats.Failed = stats.Participants - stats.Passed
	stats.AverageScore = totalScore / float64(len(results))
	stats.AveragePercentage = totalPercentage / float64(len(results))
	top := topResultsLimit
	if len(results) < top {
		top = len(results)
	}
	stats.Top = results[:top]
	return stats, nil
}

// History aggregates a participant's results across quizzes, newest first.
func (s *QuizService) History(ctx context.Context, participant domain.Participant) (ParticipantHistory, error) {
	results, err := s.sessions.ListParticipantResults(ctx, withKind(participant))
	if err != nil {
		return ParticipantHistory{}, err
	}
	history := ParticipantHistory{
		Results:      results,
		TotalQuizzes: len(results),
		BySubject:    make(map[string]SubjectStats),
	}
	if len(results) == 0 {
		return history, nil
	}

	subjectScores := make(map[string]int)
	var totalScore, totalPercentage float64
	for i, r := range results {
		passPercentage, subject, err := s.quizPolicy(ctx, r.QuizID)
		if err != nil {
			return ParticipantHistory{}, err
		}
		passed := r.Passed(passPercentage)

		totalScore += float64(r.Score)
		totalPercentage += r.Percentage()
		if passed {
			history.Passed++
		}
		if history.Best == nil || r.Score > history.Best.Score {
			history.Best = &results[i]
		}

		if subject == "" {
			continue
		}
		st := history.BySubject[subject]
		st.Count++
		if passed {
			st.Passed++
		}
		subjectScores[subject] += r.Score
		history.BySubject[subject] = st
	}
	history.AverageScore = totalScore / float64(len(results))
	history.AveragePercentage = totalPercentage / float64(len(results))
	for subject, st := range history.BySubject {
		st.AverageScore = float64(subjectScores[subject]) / float64(st.Count)
		st.PassRate = float64(st.Passed) / float64(st.Count) * 100
		history.BySubject[subject] = st
	}
	return history, nil
}

// quizPolicy falls back to the default pass threshold when the quiz is gone.
func (s *QuizService) quizPolicy(ctx context.Context, quizID string) (int, string, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if errors.Is(err, domain.ErrQuizNotFound) {
		return defaultPassPercentage, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return quiz.PassPercentage, quiz.Subject, nil
}
