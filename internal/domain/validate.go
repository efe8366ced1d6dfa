package domain

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func quizValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Normalize fills defaults and assigns missing question orders as max+1, keeping questions sorted by order.
// Questions are copied first, so a caller holding the original slice never sees the changes.
func (q *Quiz) Normalize() {
	q.Questions = slices.Clone(q.Questions)
	if q.Status == "" {
		q.Status = StatusDraft
	}
	if q.Mode == "" {
		q.Mode = ModeIndividual
	}
	maxOrder := 0
	for _, question := range q.Questions {
		if question.Order > maxOrder {
			maxOrder = question.Order
		}
	}
	for i := range q.Questions {
		if q.Questions[i].Type == "" {
			q.Questions[i].Type = QuestionSingleChoice
		}
		if q.Questions[i].Order == 0 {
			maxOrder++
			q.Questions[i].Order = maxOrder
		}
	}
	sort.SliceStable(q.Questions, func(i, j int) bool {
		return q.Questions[i].Order < q.Questions[j].Order
	})
}

// Validate checks field ranges and that every question has a correct answer.
func (q Quiz) Validate() error {
	if err := quizValidator().Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
		if !question.HasCorrectAnswer() {
			return fmt.Errorf("%w: question %q: %w", ErrInvalidQuiz, question.ID, ErrNoCorrectAnswer)
		}
	}
	return nil
}
