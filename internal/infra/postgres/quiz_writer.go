package postgres

import (
	"context"
	"fmt"

	"school-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

// QuizWriter stores authored quiz content. Saving a quiz replaces its
// questions and answers wholesale.
type QuizWriter struct {
	db *bun.DB
}

func NewQuizWriter(db *bun.DB) *QuizWriter {
	return &QuizWriter{db: db}
}

func (w *QuizWriter) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	quiz.Normalize()
	if err := quiz.Validate(); err != nil {
		return err
	}
	quizRow, questions, answers := quizRows(quiz)

	return w.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&quizRow).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("description = EXCLUDED.description").
			Set("subject = EXCLUDED.subject").
			Set("mode = EXCLUDED.mode").
			Set("level_type = EXCLUDED.level_type").
			Set("start_level = EXCLUDED.start_level").
			Set("end_level = EXCLUDED.end_level").
			Set("start_time = EXCLUDED.start_time").
			Set("end_time = EXCLUDED.end_time").
			Set("status = EXCLUDED.status").
			Set("time_limit_minutes = EXCLUDED.time_limit_minutes").
			Set("max_attempts = EXCLUDED.max_attempts").
			Set("pass_percentage = EXCLUDED.pass_percentage").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save quiz %s: %w", quiz.ID, err)
		}

		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear questions %s: %w", quiz.ID, err)
		}
		if len(questions) > 0 {
			if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
				return fmt.Errorf("insert questions %s: %w", quiz.ID, err)
			}
		}
		if len(answers) > 0 {
			if _, err := tx.NewInsert().Model(&answers).Exec(ctx); err != nil {
				return fmt.Errorf("insert answers %s: %w", quiz.ID, err)
			}
		}
		return nil
	})
}
