package app

import "school-quiz-service/internal/domain"

// Score is the outcome of scoring one session's recorded answers.
type Score struct {
	Raw     int
	Max     int
	Correct int
	Total   int
}

// Percentage is points-weighted: raw points over the quiz's total points.
func (s Score) Percentage() float64 {
	if s.Max <= 0 {
		return 0
	}
	return float64(s.Raw) / float64(s.Max) * 100
}

// Passed applies the quiz pass threshold.
func (s Score) Passed(passPercentage int) bool {
	return s.Percentage() >= float64(passPercentage)
}

// ScoreAnswers credits question points for every correctly answered question.
// Answers for questions no longer in the quiz are ignored.
func ScoreAnswers(quiz domain.Quiz, answers []domain.RecordedAnswer) Score {
	score := Score{
		Max:   quiz.MaxScore(),
		Total: len(quiz.Questions),
	}
	for _, recorded := range answers {
		question, ok := quiz.Question(recorded.QuestionID)
		if !ok {
			continue
		}
		if isCorrect(question, recorded.AnswerIDs) {
			score.Raw += question.Points
			score.Correct++
		}
	}
	return score
}

// isCorrect treats multiple-choice as all-or-nothing: the selection must equal
// the set of correct answers. Other types need their single selection marked correct.
func isCorrect(question domain.Question, selected []string) bool {
	if len(selected) == 0 {
		return false
	}
	if question.Type != domain.QuestionMultipleChoice {
		answer, ok := question.Answer(selected[0])
		return ok && answer.IsCorrect && len(selected) == 1
	}

	chosen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		chosen[id] = struct{}{}
	}
	matched := 0
	for _, answer := range question.Answers {
		_, picked := chosen[answer.ID]
		if answer.IsCorrect != picked {
			return false
		}
		if picked {
			matched++
		}
	}
	return matched == len(chosen)
}
