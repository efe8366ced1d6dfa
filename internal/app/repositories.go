package app

import (
	"context"
	"time"

	"school-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// ListQuizIDs returns the IDs of every stored quiz.
	ListQuizIDs(ctx context.Context) ([]string, error)
}

// ProfileRepository owns level profiles. EnsureProfile is idempotent and creates
// the default profile on first access.
type ProfileRepository interface {
	EnsureProfile(ctx context.Context, participantID string) (domain.LevelProfile, error)
}

// SessionRepository abstracts how sessions, recorded answers and results are stored.
type SessionRepository interface {
	// RunInTx runs fn atomically; any error returned by fn discards its writes.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx SessionTx) error) error

	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	ListAnswers(ctx context.Context, sessionID string) ([]domain.RecordedAnswer, error)
	GetResult(ctx context.Context, sessionID string) (domain.Result, error)
	ListResults(ctx context.Context, quizID string) ([]domain.Result, error)
	ListParticipantResults(ctx context.Context, participant domain.Participant) ([]domain.Result, error)
	CountFinished(ctx context.Context, quizID string, participant domain.Participant) (int, error)
}

// SessionTx is the transactional view handed to RunInTx callbacks.
type SessionTx interface {
	// LockParticipant serializes session creation for a (quiz, participant) pair.
	// A participant is identified by ID and kind; a user and a group sharing an
	// ID never share sessions.
	LockParticipant(ctx context.Context, quizID string, participant domain.Participant) error
	CountFinished(ctx context.Context, quizID string, participant domain.Participant) (int, error)
	FindOpenSession(ctx context.Context, quizID string, participant domain.Participant) (domain.Session, bool, error)
	CreateSession(ctx context.Context, session domain.Session) error

	// LockSession loads a session and holds it until the transaction ends.
	LockSession(ctx context.Context, sessionID string) (domain.Session, error)
	UpsertAnswer(ctx context.Context, answer domain.RecordedAnswer) error
	ListAnswers(ctx context.Context, sessionID string) ([]domain.RecordedAnswer, error)
	GetResult(ctx context.Context, sessionID string) (domain.Result, error)
	CreateResult(ctx context.Context, result domain.Result) error
	FinishSession(ctx context.Context, sessionID string, finishedAt time.Time) error
}

// Leaderboard is an optional ranking cache refreshed on every result insert.
type Leaderboard interface {
	Add(ctx context.Context, result domain.Result) error
	// Rank returns the 1-based position; false when the quiz has no results.
	Rank(ctx context.Context, quizID, resultID string) (int, bool, error)
}

// EventSink receives lifecycle events; failures never affect the caller.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}
