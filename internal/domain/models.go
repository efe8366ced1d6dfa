package domain

import "time"

// Role is the identity provider's role for a participant.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleTeacher     Role = "teacher"
	RoleStudent     Role = "student"
	RoleGroupLeader Role = "group_leader"
)

// ParticipantKind distinguishes individual users from groups acting as one entity.
type ParticipantKind string

const (
	ParticipantUser  ParticipantKind = "user"
	ParticipantGroup ParticipantKind = "group"
)

// Participant is whoever attempts a quiz, as supplied by the identity provider.
type Participant struct {
	ID   string
	Kind ParticipantKind
	Role Role
}

// LevelType is the education track a quiz or profile belongs to.
type LevelType string

const (
	LevelSchool     LevelType = "school"
	LevelUniversity LevelType = "university"
)

// LevelProfile describes where a participant sits in their education track.
type LevelProfile struct {
	ParticipantID string    `json:"participantId"`
	LevelType     LevelType `json:"levelType"`
	CurrentLevel  int       `json:"currentLevel"`
}

// DefaultProfile is what a participant gets when no profile exists yet.
func DefaultProfile(participantID string) LevelProfile {
	return LevelProfile{
		ParticipantID: participantID,
		LevelType:     LevelSchool,
		CurrentLevel:  1,
	}
}

// QuizStatus is the lifecycle state of a quiz.
type QuizStatus string

const (
	StatusDraft     QuizStatus = "draft"
	StatusPublished QuizStatus = "published"
	StatusActive    QuizStatus = "active"
	StatusFinished  QuizStatus = "finished"
)

// QuizMode is how a quiz is taken.
type QuizMode string

const (
	ModeIndividual QuizMode = "individual"
	ModeGroup      QuizMode = "group"
)

// QuestionType controls how a recorded selection is scored.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// Answer is a selectable option of a question.
type Answer struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"isCorrect" yaml:"isCorrect"`
}

// Question belongs to exactly one quiz and owns its answers.
type Question struct {
	ID          string       `json:"id" yaml:"id" validate:"required"`
	Text        string       `json:"text" yaml:"text"`
	Type        QuestionType `json:"type" yaml:"type" validate:"omitempty,oneof=single_choice multiple_choice true_false short_answer"`
	Points      int          `json:"points" yaml:"points" validate:"gte=1"`
	Order       int          `json:"order" yaml:"order" validate:"gte=0"`
	Hint        string       `json:"hint,omitempty" yaml:"hint"`
	Explanation string       `json:"explanation,omitempty" yaml:"explanation"`
	Answers     []Answer     `json:"answers" yaml:"answers" validate:"min=1,dive"`
}

// Quiz is a timed, level-gated set of questions.
type Quiz struct {
	ID               string     `json:"id" yaml:"id" validate:"required"`
	Title            string     `json:"title" yaml:"title"`
	Description      string     `json:"description,omitempty" yaml:"description"`
	Subject          string     `json:"subject,omitempty" yaml:"subject"`
	Mode             QuizMode   `json:"mode" yaml:"mode" validate:"omitempty,oneof=individual group"`
	LevelType        LevelType  `json:"levelType" yaml:"levelType" validate:"required,oneof=school university"`
	StartLevel       int        `json:"startLevel" yaml:"startLevel" validate:"gte=1"`
	EndLevel         int        `json:"endLevel" yaml:"endLevel" validate:"gtefield=StartLevel"`
	StartTime        time.Time  `json:"startTime" yaml:"startTime" validate:"required"`
	EndTime          time.Time  `json:"endTime" yaml:"endTime" validate:"required,gtfield=StartTime"`
	Status           QuizStatus `json:"status" yaml:"status" validate:"omitempty,oneof=draft published active finished"`
	TimeLimitMinutes int        `json:"timeLimitMinutes" yaml:"timeLimitMinutes" validate:"gt=0"`
	MaxAttempts      int        `json:"maxAttempts" yaml:"maxAttempts" validate:"gte=1"`
	PassPercentage   int        `json:"passPercentage" yaml:"passPercentage" validate:"gte=0,lte=100"`
	Questions        []Question `json:"questions" yaml:"questions" validate:"dive"`
}

// TimeLimit is the per-session time budget.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// CurrentStatus derives the status at now from the stored status and the time window.
func (q Quiz) CurrentStatus(now time.Time) QuizStatus {
	return DeriveStatus(q.Status, now, q.StartTime, q.EndTime)
}

// IsActive reports whether the quiz can be taken at now.
func (q Quiz) IsActive(now time.Time) bool {
	return q.CurrentStatus(now) == StatusActive
}

// Question looks a question up by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// MaxScore is the sum of points over all questions.
func (q Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// Answer looks an answer of the question up by ID.
func (q Question) Answer(id string) (Answer, bool) {
	for _, answer := range q.Answers {
		if answer.ID == id {
			return answer, true
		}
	}
	return Answer{}, false
}

// HasCorrectAnswer reports whether at least one answer is marked correct.
func (q Question) HasCorrectAnswer() bool {
	for _, answer := range q.Answers {
		if answer.IsCorrect {
			return true
		}
	}
	return false
}

// Session is one attempt by a participant at a quiz. A nil FinishedAt means in progress.
type Session struct {
	ID              string          `json:"id"`
	QuizID          string          `json:"quizId"`
	ParticipantID   string          `json:"participantId"`
	ParticipantKind ParticipantKind `json:"participantKind"`
	StartedAt       time.Time       `json:"startedAt"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty"`
}

// IsFinished reports whether the session has been closed.
func (s Session) IsFinished() bool {
	return s.FinishedAt != nil
}

// Deadline is the instant the time budget runs out.
func (s Session) Deadline(quiz Quiz) time.Time {
	return s.StartedAt.Add(quiz.TimeLimit())
}

// Expired reports whether the time budget has been used up at now.
func (s Session) Expired(quiz Quiz, now time.Time) bool {
	return !now.Before(s.Deadline(quiz))
}

// TimeRemaining never goes below zero.
func (s Session) TimeRemaining(quiz Quiz, now time.Time) time.Duration {
	left := s.Deadline(quiz).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// RecordedAnswer is the participant's current selection for one question of a session.
type RecordedAnswer struct {
	SessionID  string    `json:"sessionId"`
	QuestionID string    `json:"questionId"`
	AnswerIDs  []string  `json:"answerIds"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Result is the immutable scored outcome of a finished session.
type Result struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"sessionId"`
	QuizID          string          `json:"quizId"`
	ParticipantID   string          `json:"participantId"`
	ParticipantKind ParticipantKind `json:"participantKind"`
	Score           int             `json:"score"`
	MaxScore        int             `json:"maxScore"`
	TotalQuestions  int             `json:"totalQuestions"`
	CorrectAnswers  int             `json:"correctAnswers"`
	CompletedAt     time.Time       `json:"completedAt"`
}

// Percentage is the points-weighted score, 0 when the quiz carries no points.
func (r Result) Percentage() float64 {
	if r.MaxScore <= 0 {
		return 0
	}
	return float64(r.Score) / float64(r.MaxScore) * 100
}

// Passed applies the quiz pass threshold.
func (r Result) Passed(passPercentage int) bool {
	return r.Percentage() >= float64(passPercentage)
}
