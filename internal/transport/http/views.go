package http

import (
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
)

// Views are what clients see. Correct answers are never sent while a session
// is open; explanations are only sent with a finished session.

type answerView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID          string              `json:"id"`
	Text        string              `json:"text"`
	Type        domain.QuestionType `json:"type"`
	Points      int                 `json:"points"`
	Order       int                 `json:"order"`
	Hint        string              `json:"hint,omitempty"`
	Explanation string              `json:"explanation,omitempty"`
	Answers     []answerView        `json:"answers"`
}

type sessionView struct {
	SessionID            string              `json:"sessionId"`
	QuizID               string              `json:"quizId"`
	StartedAt            time.Time           `json:"startedAt"`
	Finished             bool                `json:"finished"`
	TimeRemainingSeconds int                 `json:"timeRemainingSeconds"`
	Answered             int                 `json:"answered"`
	Total                int                 `json:"total"`
	Progress             int                 `json:"progress"`
	Questions            []questionView      `json:"questions"`
	Answers              map[string][]string `json:"answers"`
}

func newSessionView(state app.SessionState) sessionView {
	finished := state.Session.IsFinished()
	questions := make([]questionView, 0, len(state.Questions))
	for _, q := range state.Questions {
		view := questionView{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Points:  q.Points,
			Order:   q.Order,
			Hint:    q.Hint,
			Answers: make([]answerView, 0, len(q.Answers)),
		}
		if finished {
			view.Explanation = q.Explanation
		}
		for _, a := range q.Answers {
			view.Answers = append(view.Answers, answerView{ID: a.ID, Text: a.Text})
		}
		questions = append(questions, view)
	}
	return sessionView{
		SessionID:            state.Session.ID,
		QuizID:               state.Session.QuizID,
		StartedAt:            state.Session.StartedAt,
		Finished:             finished,
		TimeRemainingSeconds: int(state.TimeRemaining / time.Second),
		Answered:             state.Answered,
		Total:                state.Total,
		Progress:             state.Progress,
		Questions:            questions,
		Answers:              state.Answers,
	}
}

type resultView struct {
	ResultID          string    `json:"resultId"`
	SessionID         string    `json:"sessionId"`
	QuizID            string    `json:"quizId"`
	Score             int       `json:"score"`
	MaxScore          int       `json:"maxScore"`
	CorrectAnswers    int       `json:"correctAnswers"`
	TotalQuestions    int       `json:"totalQuestions"`
	Percentage        float64   `json:"percentage"`
	Passed            bool      `json:"passed"`
	Rank              int       `json:"rank"`
	TotalParticipants int       `json:"totalParticipants"`
	CompletedAt       time.Time `json:"completedAt"`
}

func newResultView(s app.ResultSummary) resultView {
	return resultView{
		ResultID:          s.Result.ID,
		SessionID:         s.Result.SessionID,
		QuizID:            s.Result.QuizID,
		Score:             s.Result.Score,
		MaxScore:          s.Result.MaxScore,
		CorrectAnswers:    s.Result.CorrectAnswers,
		TotalQuestions:    s.Result.TotalQuestions,
		Percentage:        s.Percentage,
		Passed:            s.Passed,
		Rank:              s.Rank,
		TotalParticipants: s.TotalParticipants,
		CompletedAt:       s.Result.CompletedAt,
	}
}

type timingView struct {
	Status          domain.QuizStatus `json:"status"`
	IsActive        bool              `json:"isActive"`
	TimeLeftSeconds int               `json:"timeLeftSeconds"`
}

func newTimingView(t app.QuizTiming) timingView {
	return timingView{
		Status:          t.Status,
		IsActive:        t.IsActive,
		TimeLeftSeconds: int(t.TimeLeft / time.Second),
	}
}

type quizView struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Subject          string            `json:"subject,omitempty"`
	Mode             domain.QuizMode   `json:"mode"`
	LevelType        domain.LevelType  `json:"levelType"`
	StartLevel       int               `json:"startLevel"`
	EndLevel         int               `json:"endLevel"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          time.Time         `json:"endTime"`
	Status           domain.QuizStatus `json:"status"`
	TimeLimitMinutes int               `json:"timeLimitMinutes"`
	MaxAttempts      int               `json:"maxAttempts"`
	PassPercentage   int               `json:"passPercentage"`
	QuestionCount    int               `json:"questionCount"`
	MaxScore         int               `json:"maxScore"`
}

func newQuizView(q domain.Quiz, status domain.QuizStatus) quizView {
	return quizView{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Subject:          q.Subject,
		Mode:             q.Mode,
		LevelType:        q.LevelType,
		StartLevel:       q.StartLevel,
		EndLevel:         q.EndLevel,
		StartTime:        q.StartTime,
		EndTime:          q.EndTime,
		Status:           status,
		TimeLimitMinutes: q.TimeLimitMinutes,
		MaxAttempts:      q.MaxAttempts,
		PassPercentage:   q.PassPercentage,
		QuestionCount:    len(q.Questions),
		MaxScore:         q.MaxScore(),
	}
}

type detailView struct {
	Quiz              quizView   `json:"quiz"`
	Timing            timingView `json:"timing"`
	CanAccess         bool       `json:"canAccess"`
	HasAttempted      bool       `json:"hasAttempted"`
	AttemptsRemaining int        `json:"attemptsRemaining"`
	Participants      int        `json:"participants"`
	AverageScore      float64    `json:"averageScore"`
}

func newDetailView(d app.QuizDetail) detailView {
	return detailView{
		Quiz:              newQuizView(d.Quiz, d.Timing.Status),
		Timing:            newTimingView(d.Timing),
		CanAccess:         d.CanAccess,
		HasAttempted:      d.HasAttempted,
		AttemptsRemaining: d.AttemptsRemaining,
		Participants:      d.Participants,
		AverageScore:      d.AverageScore,
	}
}

type statsView struct {
	Participants      int             `json:"participants"`
	AverageScore      float64         `json:"averageScore"`
	MaxScore          int             `json:"maxScore"`
	MinScore          int             `json:"minScore"`
	AveragePercentage float64         `json:"averagePercentage"`
	Passed            int             `json:"passed"`
	Failed            int             `json:"failed"`
	Top               []domain.Result `json:"top"`
}

type subjectView struct {
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageScore"`
	PassRate     float64 `json:"passRate"`
}

type historyView struct {
	TotalQuizzes      int                    `json:"totalQuizzes"`
	AverageScore      float64                `json:"averageScore"`
	AveragePercentage float64                `json:"averagePercentage"`
	Passed            int                    `json:"passed"`
	Best              *domain.Result         `json:"best,omitempty"`
	BySubject         map[string]subjectView `json:"bySubject"`
	Results           []domain.Result        `json:"results"`
}

func newHistoryView(h app.ParticipantHistory) historyView {
	view := historyView{
		TotalQuizzes:      h.TotalQuizzes,
		AverageScore:      h.AverageScore,
		AveragePercentage: h.AveragePercentage,
		Passed:            h.Passed,
		Best:              h.Best,
		BySubject:         make(map[string]subjectView, len(h.BySubject)),
		Results:           h.Results,
	}
	for subject, st := range h.BySubject {
		view.BySubject[subject] = subjectView{Count: st.Count, AverageScore: st.AverageScore, PassRate: st.PassRate}
	}
	return view
}
