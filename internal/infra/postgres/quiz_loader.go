package postgres

import (
	"context"
	"errors"
	"fmt"

	"school-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader reads quiz content straight from the quiz tables over pgx.
// It sits behind the Redis cache, so it favors a few plain queries over bun.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz                    domain.Quiz
		mode, levelType, status string
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, description, subject, mode, level_type, start_level, end_level,
		       start_time, end_time, status, time_limit_minutes, max_attempts, pass_percentage
		FROM quizzes WHERE id=$1`, quizID).Scan(
		&quiz.ID, &quiz.Title, &quiz.Description, &quiz.Subject, &mode, &levelType,
		&quiz.StartLevel, &quiz.EndLevel, &quiz.StartTime, &quiz.EndTime, &status,
		&quiz.TimeLimitMinutes, &quiz.MaxAttempts, &quiz.PassPercentage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.Mode = domain.QuizMode(mode)
	quiz.LevelType = domain.LevelType(levelType)
	quiz.Status = domain.QuizStatus(status)

	questions, err := l.loadQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := l.attachAnswers(ctx, quizID, questions); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

// ListQuizIDs returns every stored quiz, earliest window first.
func (l *QuizLoader) ListQuizIDs(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT id FROM quizzes ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quiz id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return ids, nil
}

func (l *QuizLoader) loadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, text, type, points, ord, hint, explanation
		FROM questions WHERE quiz_id=$1 ORDER BY ord, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q   domain.Question
			typ string
		)
		if err := rows.Scan(&q.ID, &q.Text, &typ, &q.Points, &q.Order, &q.Hint, &q.Explanation); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(typ)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

func (l *QuizLoader) attachAnswers(ctx context.Context, quizID string, questions []domain.Question) error {
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}

	rows, err := l.pool.Query(ctx, `
		SELECT question_id, id, text, is_correct
		FROM answers WHERE quiz_id=$1 ORDER BY question_id, position`, quizID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			questionID string
			a          domain.Answer
		)
		if err := rows.Scan(&questionID, &a.ID, &a.Text, &a.IsCorrect); err != nil {
			return fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Answers = append(questions[i].Answers, a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	return nil
}
