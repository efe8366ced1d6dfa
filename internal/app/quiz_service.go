package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/logger"

	"github.com/google/uuid"
)

// Deps wires the collaborators of QuizService. Leaderboard, Events, Logger and
// Clock are optional.
type Deps struct {
	Quizzes     QuizRepository
	Profiles    ProfileRepository
	Sessions    SessionRepository
	Leaderboard Leaderboard
	Events      EventSink
	Logger      *logger.Logger
	Clock       func() time.Time
}

// QuizService contains the quiz-taking use cases.
type QuizService struct {
	quizzes     QuizRepository
	profiles    ProfileRepository
	sessions    SessionRepository
	leaderboard Leaderboard
	events      EventSink
	log         *logger.Logger
	now         func() time.Time
}

func NewQuizService(deps Deps) *QuizService {
	s := &QuizService{
		quizzes:     deps.Quizzes,
		profiles:    deps.Profiles,
		sessions:    deps.Sessions,
		leaderboard: deps.Leaderboard,
		events:      deps.Events,
		log:         deps.Logger,
		now:         deps.Clock,
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CanAccess ensures the participant has a profile and runs the eligibility check.
func (s *QuizService) CanAccess(ctx context.Context, participant domain.Participant, quizID string) (bool, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return false, err
	}
	profile, err := s.profileFor(ctx, participant)
	if err != nil {
		return false, err
	}
	return CanAccess(participant, profile, quiz, s.now()), nil
}

// StartOrResume returns the participant's open session for the quiz, creating one if needed.
func (s *QuizService) StartOrResume(ctx context.Context, participant domain.Participant, quizID string) (domain.Session, error) {
	participant = withKind(participant)
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	now := s.now()
	if !quiz.IsActive(now) {
		return domain.Session{}, domain.ErrNotActive
	}
	profile, err := s.profileFor(ctx, participant)
	if err != nil {
		return domain.Session{}, err
	}
	if !CanAccess(participant, profile, quiz, now) {
		return domain.Session{}, domain.ErrNotEligible
	}

	var (
		session   domain.Session
		created   bool
		exhausted bool
		expired   *domain.Result
	)
	err = s.sessions.RunInTx(ctx, func(ctx context.Context, tx SessionTx) error {
		session, created, exhausted, expired = domain.Session{}, false, false, nil

		if err := tx.LockParticipant(ctx, quiz.ID, participant); err != nil {
			return err
		}
		open, ok, err := tx.FindOpenSession(ctx, quiz.ID, participant)
		if err != nil {
			return err
		}
		if ok && open.Expired(quiz, now) {
			result, err := s.finishLocked(ctx, tx, quiz, open, now)
			if err != nil {
				return err
			}
			expired = &result
			ok = false
		}

		finished, err := tx.CountFinished(ctx, quiz.ID, participant)
		if err != nil {
			return err
		}
		if finished >= quiz.MaxAttempts {
			exhausted = true
			return nil
		}
		if ok {
			session = open
			return nil
		}

		session = domain.Session{
			ID:              uuid.NewString(),
			QuizID:          quiz.ID,
			ParticipantID:   participant.ID,
			ParticipantKind: participant.Kind,
			StartedAt:       now,
		}
		created = true
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("start session: %w", err)
	}

	if expired != nil {
		s.afterFinish(ctx, *expired, true)
	}
	if exhausted {
		return domain.Session{}, domain.ErrAttemptsExhausted
	}
	if created {
		s.publish(ctx, domain.Event{
			Type:          domain.EventSessionStarted,
			QuizID:        quiz.ID,
			SessionID:     session.ID,
			ParticipantID: participant.ID,
			OccurredAt:    now,
		})
	}
	return session, nil
}

// Record stores the selected answers for a question, replacing any earlier selection.
func (s *QuizService) Record(ctx context.Context, sessionID, questionID string, answerIDs ...string) error {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return err
	}
	now := s.now()

	var (
		closed  bool
		expired *domain.Result
	)
	err = s.sessions.RunInTx(ctx, func(ctx context.Context, tx SessionTx) error {
		closed, expired = false, nil

		locked, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if locked.IsFinished() {
			closed = true
			return nil
		}
		if locked.Expired(quiz, now) {
			result, err := s.finishLocked(ctx, tx, quiz, locked, now)
			if err != nil {
				return err
			}
			expired = &result
			closed = true
			return nil
		}

		question, ok := quiz.Question(questionID)
		if !ok {
			return domain.ErrQuestionMismatch
		}
		selected, err := selection(question, answerIDs)
		if err != nil {
			return err
		}
		return tx.UpsertAnswer(ctx, domain.RecordedAnswer{
			SessionID:  sessionID,
			QuestionID: questionID,
			AnswerIDs:  selected,
			AnsweredAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if expired != nil {
		s.afterFinish(ctx, *expired, true)
	}
	if closed {
		return domain.ErrSessionClosed
	}
	return nil
}

// Finish scores and closes a session. Calling it again returns the same result.
func (s *QuizService) Finish(ctx context.Context, sessionID string) (domain.Result, error) {
	return s.finish(ctx, sessionID, false)
}

// Poll reports the session state, auto-finishing it when the time budget is spent.
func (s *QuizService) Poll(ctx context.Context, sessionID string) (SessionState, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return SessionState{}, err
	}
	now := s.now()

	state := SessionState{
		Session:   session,
		Questions: quiz.Questions,
		Total:     len(quiz.Questions),
	}
	if !session.IsFinished() && session.Expired(quiz, now) {
		result, err := s.finish(ctx, sessionID, true)
		if err != nil {
			return SessionState{}, err
		}
		if session, err = s.sessions.GetSession(ctx, sessionID); err != nil {
			return SessionState{}, err
		}
		state.Session = session
		state.Result = &result
	} else if session.IsFinished() {
		result, err := s.sessions.GetResult(ctx, sessionID)
		if err != nil {
			return SessionState{}, err
		}
		state.Result = &result
	} else {
		state.TimeRemaining = session.TimeRemaining(quiz, now)
	}

	answers, err := s.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	state.Answers = make(map[string][]string, len(answers))
	for _, a := range answers {
		state.Answers[a.QuestionID] = a.AnswerIDs
	}
	state.Answered = len(state.Answers)
	if state.Total > 0 {
		state.Progress = state.Answered * 100 / state.Total
	}
	return state, nil
}

// Result returns the scored result of a session, auto-finishing an expired one.
func (s *QuizService) Result(ctx context.Context, sessionID string) (domain.Result, error) {
	state, err := s.Poll(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	if state.Result == nil {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return *state.Result, nil
}

// Rank returns the 1-based position of a result among the quiz's results; false
// when the quiz has none yet.
func (s *QuizService) Rank(ctx context.Context, quizID, resultID string) (int, bool, error) {
	if s.leaderboard != nil {
		rank, ok, err := s.leaderboard.Rank(ctx, quizID, resultID)
		if err == nil || errors.Is(err, domain.ErrResultNotFound) {
			return rank, ok, err
		}
		s.log.Warn("leaderboard rank failed, sorting results", "quiz_id", quizID, "error", err)
	}

	results, err := s.sessions.ListResults(ctx, quizID)
	if err != nil {
		return 0, false, err
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	rank, ok := RankOf(results, resultID)
	if !ok {
		return 0, false, domain.ErrResultNotFound
	}
	return rank, true, nil
}

// AttemptsRemaining is the attempt cap minus finished sessions, never negative.
func (s *QuizService) AttemptsRemaining(ctx context.Context, participant domain.Participant, quizID string) (int, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, err
	}
	finished, err := s.sessions.CountFinished(ctx, quizID, withKind(participant))
	if err != nil {
		return 0, err
	}
	if left := quiz.MaxAttempts - finished; left > 0 {
		return left, nil
	}
	return 0, nil
}

func (s *QuizService) finish(ctx context.Context, sessionID string, auto bool) (domain.Result, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Result{}, err
	}
	now := s.now()

	var (
		result  domain.Result
		created bool
	)
	err = s.sessions.RunInTx(ctx, func(ctx context.Context, tx SessionTx) error {
		created = false
		locked, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if locked.IsFinished() {
			result, err = tx.GetResult(ctx, sessionID)
			return err
		}
		result, err = s.finishLocked(ctx, tx, quiz, locked, now)
		created = err == nil
		return err
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("finish session: %w", err)
	}
	if created {
		s.afterFinish(ctx, result, auto)
	}
	return result, nil
}

// finishLocked scores the recorded answers and persists the result with the
// finish timestamp; the session must be locked by tx.
func (s *QuizService) finishLocked(ctx context.Context, tx SessionTx, quiz domain.Quiz, session domain.Session, now time.Time) (domain.Result, error) {
	answers, err := tx.ListAnswers(ctx, session.ID)
	if err != nil {
		return domain.Result{}, err
	}
	score := ScoreAnswers(quiz, answers)
	result := domain.Result{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		QuizID:          quiz.ID,
		ParticipantID:   session.ParticipantID,
		ParticipantKind: session.ParticipantKind,
		Score:           score.Raw,
		MaxScore:        score.Max,
		TotalQuestions:  score.Total,
		CorrectAnswers:  score.Correct,
		CompletedAt:     now,
	}
	if err := tx.CreateResult(ctx, result); err != nil {
		return domain.Result{}, err
	}
	if err := tx.FinishSession(ctx, session.ID, now); err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

func (s *QuizService) afterFinish(ctx context.Context, result domain.Result, auto bool) {
	if auto {
		s.log.Info("session auto-finished after time limit",
			"quiz_id", result.QuizID, "session_id", result.SessionID, "score", result.Score)
	}
	if s.leaderboard != nil {
		if err := s.leaderboard.Add(ctx, result); err != nil {
			s.log.Warn("leaderboard refresh failed", "quiz_id", result.QuizID, "error", err)
		}
	}
	s.publish(ctx, domain.Event{
		Type:          domain.EventSessionFinished,
		QuizID:        result.QuizID,
		SessionID:     result.SessionID,
		ParticipantID: result.ParticipantID,
		AutoFinished:  auto,
		Result:        &result,
		OccurredAt:    result.CompletedAt,
	})
}

func (s *QuizService) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", "type", event.Type, "session_id", event.SessionID, "error", err)
	}
}

// profileFor ensures a profile exists; only students need one for gating.
func (s *QuizService) profileFor(ctx context.Context, participant domain.Participant) (domain.LevelProfile, error) {
	if participant.Role != domain.RoleStudent {
		return domain.LevelProfile{}, nil
	}
	return s.profiles.EnsureProfile(ctx, participant.ID)
}

// withKind defaults an unset kind to user.
func withKind(p domain.Participant) domain.Participant {
	if p.Kind == "" {
		p.Kind = domain.ParticipantUser
	}
	return p
}

// selection validates the chosen answer IDs against the question and drops duplicates.
func selection(question domain.Question, answerIDs []string) ([]string, error) {
	if len(answerIDs) == 0 {
		return nil, domain.ErrAnswerMismatch
	}
	seen := make(map[string]struct{}, len(answerIDs))
	out := make([]string, 0, len(answerIDs))
	for _, id := range answerIDs {
		if _, ok := question.Answer(id); !ok {
			return nil, domain.ErrAnswerMismatch
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > 1 && question.Type != domain.QuestionMultipleChoice {
		return nil, domain.ErrAnswerMismatch
	}
	return out, nil
}
