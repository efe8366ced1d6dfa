package postgres

import (
	"time"

	"school-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

type profileRow struct {
	bun.BaseModel `bun:"table:level_profiles"`

	ParticipantID string `bun:"participant_id,pk"`
	LevelType     string `bun:"level_type,notnull"`
	CurrentLevel  int    `bun:"current_level,notnull"`
}

func (r profileRow) toDomain() domain.LevelProfile {
	return domain.LevelProfile{
		ParticipantID: r.ParticipantID,
		LevelType:     domain.LevelType(r.LevelType),
		CurrentLevel:  r.CurrentLevel,
	}
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID               string    `bun:"id,pk"`
	Title            string    `bun:"title,notnull"`
	Description      string    `bun:"description,notnull"`
	Subject          string    `bun:"subject,notnull"`
	Mode             string    `bun:"mode,notnull"`
	LevelType        string    `bun:"level_type,notnull"`
	StartLevel       int       `bun:"start_level,notnull"`
	EndLevel         int       `bun:"end_level,notnull"`
	StartTime        time.Time `bun:"start_time,notnull"`
	EndTime          time.Time `bun:"end_time,notnull"`
	Status           string    `bun:"status,notnull"`
	TimeLimitMinutes int       `bun:"time_limit_minutes,notnull"`
	MaxAttempts      int       `bun:"max_attempts,notnull"`
	PassPercentage   int       `bun:"pass_percentage,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	QuizID      string `bun:"quiz_id,pk"`
	ID          string `bun:"id,pk"`
	Text        string `bun:"text,notnull"`
	Type        string `bun:"type,notnull"`
	Points      int    `bun:"points,notnull"`
	Order       int    `bun:"ord,notnull"`
	Hint        string `bun:"hint,notnull"`
	Explanation string `bun:"explanation,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	QuizID     string `bun:"quiz_id,pk"`
	QuestionID string `bun:"question_id,pk"`
	ID         string `bun:"id,pk"`
	Position   int    `bun:"position,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
}

// quizRows flattens a quiz into the rows of its three tables.
func quizRows(q domain.Quiz) (quizRow, []questionRow, []answerRow) {
	quiz := quizRow{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Subject:          q.Subject,
		Mode:             string(q.Mode),
		LevelType:        string(q.LevelType),
		StartLevel:       q.StartLevel,
		EndLevel:         q.EndLevel,
		StartTime:        q.StartTime,
		EndTime:          q.EndTime,
		Status:           string(q.Status),
		TimeLimitMinutes: q.TimeLimitMinutes,
		MaxAttempts:      q.MaxAttempts,
		PassPercentage:   q.PassPercentage,
	}
	questions := make([]questionRow, 0, len(q.Questions))
	answers := make([]answerRow, 0)
	for _, question := range q.Questions {
		questions = append(questions, questionRow{
			QuizID:      q.ID,
			ID:          question.ID,
			Text:        question.Text,
			Type:        string(question.Type),
			Points:      question.Points,
			Order:       question.Order,
			Hint:        question.Hint,
			Explanation: question.Explanation,
		})
		for i, answer := range question.Answers {
			answers = append(answers, answerRow{
				QuizID:     q.ID,
				QuestionID: question.ID,
				ID:         answer.ID,
				Position:   i,
				Text:       answer.Text,
				IsCorrect:  answer.IsCorrect,
			})
		}
	}
	return quiz, questions, answers
}

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID              string     `bun:"id,pk"`
	QuizID          string     `bun:"quiz_id,notnull"`
	ParticipantID   string     `bun:"participant_id,notnull"`
	ParticipantKind string     `bun:"participant_kind,notnull"`
	StartedAt       time.Time  `bun:"started_at,notnull"`
	FinishedAt      *time.Time `bun:"finished_at"`
}

func sessionFromDomain(s domain.Session) sessionRow {
	return sessionRow{
		ID:              s.ID,
		QuizID:          s.QuizID,
		ParticipantID:   s.ParticipantID,
		ParticipantKind: string(s.ParticipantKind),
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
	}
}

func (r sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:              r.ID,
		QuizID:          r.QuizID,
		ParticipantID:   r.ParticipantID,
		ParticipantKind: domain.ParticipantKind(r.ParticipantKind),
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
	}
}

type recordedAnswerRow struct {
	bun.BaseModel `bun:"table:recorded_answers"`

	SessionID  string    `bun:"session_id,pk"`
	QuestionID string    `bun:"question_id,pk"`
	AnswerIDs  []string  `bun:"answer_ids,array"`
	AnsweredAt time.Time `bun:"answered_at,notnull"`
}

func (r recordedAnswerRow) toDomain() domain.RecordedAnswer {
	return domain.RecordedAnswer{
		SessionID:  r.SessionID,
		QuestionID: r.QuestionID,
		AnswerIDs:  r.AnswerIDs,
		AnsweredAt: r.AnsweredAt,
	}
}

type resultRow struct {
	bun.BaseModel `bun:"table:results"`

	ID              string    `bun:"id,pk"`
	SessionID       string    `bun:"session_id,notnull"`
	QuizID          string    `bun:"quiz_id,notnull"`
	ParticipantID   string    `bun:"participant_id,notnull"`
	ParticipantKind string    `bun:"participant_kind,notnull"`
	Score           int       `bun:"score,notnull"`
	MaxScore        int       `bun:"max_score,notnull"`
	TotalQuestions  int       `bun:"total_questions,notnull"`
	CorrectAnswers  int       `bun:"correct_answers,notnull"`
	CompletedAt     time.Time `bun:"completed_at,notnull"`
}

func resultFromDomain(r domain.Result) resultRow {
	return resultRow{
		ID:              r.ID,
		SessionID:       r.SessionID,
		QuizID:          r.QuizID,
		ParticipantID:   r.ParticipantID,
		ParticipantKind: string(r.ParticipantKind),
		Score:           r.Score,
		MaxScore:        r.MaxScore,
		TotalQuestions:  r.TotalQuestions,
		CorrectAnswers:  r.CorrectAnswers,
		CompletedAt:     r.CompletedAt,
	}
}

func (r resultRow) toDomain() domain.Result {
	return domain.Result{
		ID:              r.ID,
		SessionID:       r.SessionID,
		QuizID:          r.QuizID,
		ParticipantID:   r.ParticipantID,
		ParticipantKind: domain.ParticipantKind(r.ParticipantKind),
		Score:           r.Score,
		MaxScore:        r.MaxScore,
		TotalQuestions:  r.TotalQuestions,
		CorrectAnswers:  r.CorrectAnswers,
		CompletedAt:     r.CompletedAt,
	}
}

func resultsToDomain(rows []resultRow) []domain.Result {
	out := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
