package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

// SessionStore persists sessions, recorded answers and results with bun.
// Creation for a (quiz, participant) pair is serialized by a transaction-scoped
// advisory lock; writes to one session are serialized by SELECT ... FOR UPDATE.
// Partial and unique indexes back both up.
type SessionStore struct {
	db *bun.DB
	sessionQueries
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db, sessionQueries: sessionQueries{db: db}}
}

func (s *SessionStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.SessionTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &sessionTx{sessionQueries: sessionQueries{db: tx}})
	})
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) ListResults(ctx context.Context, quizID string) ([]domain.Result, error) {
	var rows []resultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("score DESC", "completed_at ASC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return resultsToDomain(rows), nil
}

func (s *SessionStore) ListParticipantResults(ctx context.Context, participant domain.Participant) ([]domain.Result, error) {
	var rows []resultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("participant_id = ?", participant.ID).
		Where("participant_kind = ?", string(participant.Kind)).
		Order("completed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participant results: %w", err)
	}
	return resultsToDomain(rows), nil
}

// sessionQueries holds the reads shared by the store and its transactions.
type sessionQueries struct {
	db bun.IDB
}

func (q sessionQueries) CountFinished(ctx context.Context, quizID string, participant domain.Participant) (int, error) {
	n, err := q.db.NewSelect().
		Model((*sessionRow)(nil)).
		Where("quiz_id = ?", quizID).
		Where("participant_id = ?", participant.ID).
		Where("participant_kind = ?", string(participant.Kind)).
		Where("finished_at IS NOT NULL").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count finished sessions: %w", err)
	}
	return n, nil
}

func (q sessionQueries) ListAnswers(ctx context.Context, sessionID string) ([]domain.RecordedAnswer, error) {
	var rows []recordedAnswerRow
	err := q.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("question_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.RecordedAnswer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (q sessionQueries) GetResult(ctx context.Context, sessionID string) (domain.Result, error) {
	var row resultRow
	err := q.db.NewSelect().Model(&row).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("get result: %w", err)
	}
	return row.toDomain(), nil
}

type sessionTx struct {
	sessionQueries
}

func (tx *sessionTx) LockParticipant(ctx context.Context, quizID string, participant domain.Participant) error {
	key := quizID + "/" + string(participant.Kind) + "/" + participant.ID
	_, err := tx.db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key)
	if err != nil {
		return fmt.Errorf("lock participant: %w", err)
	}
	return nil
}

func (tx *sessionTx) FindOpenSession(ctx context.Context, quizID string, participant domain.Participant) (domain.Session, bool, error) {
	var row sessionRow
	err := tx.db.NewSelect().
		Model(&row).
		Where("quiz_id = ?", quizID).
		Where("participant_id = ?", participant.ID).
		Where("participant_kind = ?", string(participant.Kind)).
		Where("finished_at IS NULL").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("find open session: %w", err)
	}
	return row.toDomain(), true, nil
}

func (tx *sessionTx) CreateSession(ctx context.Context, session domain.Session) error {
	row := sessionFromDomain(session)
	if _, err := tx.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (tx *sessionTx) LockSession(ctx context.Context, sessionID string) (domain.Session, error) {
	var row sessionRow
	err := tx.db.NewSelect().Model(&row).Where("id = ?", sessionID).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("lock session: %w", err)
	}
	return row.toDomain(), nil
}

func (tx *sessionTx) UpsertAnswer(ctx context.Context, answer domain.RecordedAnswer) error {
	row := recordedAnswerRow{
		SessionID:  answer.SessionID,
		QuestionID: answer.QuestionID,
		AnswerIDs:  answer.AnswerIDs,
		AnsweredAt: answer.AnsweredAt,
	}
	_, err := tx.db.NewInsert().
		Model(&row).
		On("CONFLICT (session_id, question_id) DO UPDATE").
		Set("answer_ids = EXCLUDED.answer_ids").
		Set("answered_at = EXCLUDED.answered_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (tx *sessionTx) CreateResult(ctx context.Context, result domain.Result) error {
	row := resultFromDomain(result)
	if _, err := tx.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

func (tx *sessionTx) FinishSession(ctx context.Context, sessionID string, finishedAt time.Time) error {
	res, err := tx.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("finished_at = ?", finishedAt).
		Where("id = ?", sessionID).
		Where("finished_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionClosed
	}
	return nil
}
