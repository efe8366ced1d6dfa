package memory

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
)

var (
	errOpenSessionExists = errors.New("open session already exists")
	errResultExists      = errors.New("result already exists for session")
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Transactions are serialized by a single lock and applied on a copy that is
// swapped in only when the callback succeeds.
type SessionStore struct {
	mu    sync.RWMutex
	state storeState
}

type answerKey struct {
	sessionID  string
	questionID string
}

type storeState struct {
	sessions map[string]domain.Session
	answers  map[answerKey]domain.RecordedAnswer
	results  map[string]domain.Result // keyed by session ID
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		state: storeState{
			sessions: make(map[string]domain.Session),
			answers:  make(map[answerKey]domain.RecordedAnswer),
			results:  make(map[string]domain.Result),
		},
	}
}

func (s *SessionStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.SessionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := storeState{
		sessions: maps.Clone(s.state.sessions),
		answers:  maps.Clone(s.state.answers),
		results:  maps.Clone(s.state.results),
	}
	if err := fn(ctx, &memTx{state: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.session(sessionID)
}

func (s *SessionStore) ListAnswers(_ context.Context, sessionID string) ([]domain.RecordedAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listAnswers(sessionID), nil
}

func (s *SessionStore) GetResult(_ context.Context, sessionID string) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.result(sessionID)
}

func (s *SessionStore) ListResults(_ context.Context, quizID string) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0)
	for _, r := range s.state.results {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	app.SortResults(out)
	return out, nil
}

func (s *SessionStore) ListParticipantResults(_ context.Context, participant domain.Participant) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0)
	for _, r := range s.state.results {
		if r.ParticipantID == participant.ID && r.ParticipantKind == participant.Kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	return out, nil
}

func (s *SessionStore) CountFinished(_ context.Context, quizID string, participant domain.Participant) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.countFinished(quizID, participant.ID, participant.Kind), nil
}

func (st *storeState) session(sessionID string) (domain.Session, error) {
	session, ok := st.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (st *storeState) result(sessionID string) (domain.Result, error) {
	result, ok := st.results[sessionID]
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return result, nil
}

func (st *storeState) listAnswers(sessionID string) []domain.RecordedAnswer {
	out := make([]domain.RecordedAnswer, 0)
	for key, answer := range st.answers {
		if key.sessionID == sessionID {
			out = append(out, answer)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}

func ownedBy(session domain.Session, quizID, participantID string, kind domain.ParticipantKind) bool {
	return session.QuizID == quizID && session.ParticipantID == participantID && session.ParticipantKind == kind
}

func (st *storeState) countFinished(quizID, participantID string, kind domain.ParticipantKind) int {
	count := 0
	for _, session := range st.sessions {
		if ownedBy(session, quizID, participantID, kind) && session.IsFinished() {
			count++
		}
	}
	return count
}

func (st *storeState) openSession(quizID, participantID string, kind domain.ParticipantKind) (domain.Session, bool) {
	for _, session := range st.sessions {
		if ownedBy(session, quizID, participantID, kind) && !session.IsFinished() {
			return session, true
		}
	}
	return domain.Session{}, false
}

// memTx runs against the working copy; the store lock already serializes
// transactions, so the Lock* methods have nothing left to do.
type memTx struct {
	state *storeState
}

func (tx *memTx) LockParticipant(context.Context, string, domain.Participant) error {
	return nil
}

func (tx *memTx) CountFinished(_ context.Context, quizID string, participant domain.Participant) (int, error) {
	return tx.state.countFinished(quizID, participant.ID, participant.Kind), nil
}

func (tx *memTx) FindOpenSession(_ context.Context, quizID string, participant domain.Participant) (domain.Session, bool, error) {
	session, ok := tx.state.openSession(quizID, participant.ID, participant.Kind)
	return session, ok, nil
}

func (tx *memTx) CreateSession(_ context.Context, session domain.Session) error {
	if _, ok := tx.state.openSession(session.QuizID, session.ParticipantID, session.ParticipantKind); ok {
		return errOpenSessionExists
	}
	tx.state.sessions[session.ID] = session
	return nil
}

func (tx *memTx) LockSession(_ context.Context, sessionID string) (domain.Session, error) {
	return tx.state.session(sessionID)
}

func (tx *memTx) UpsertAnswer(_ context.Context, answer domain.RecordedAnswer) error {
	tx.state.answers[answerKey{sessionID: answer.SessionID, questionID: answer.QuestionID}] = answer
	return nil
}

func (tx *memTx) ListAnswers(_ context.Context, sessionID string) ([]domain.RecordedAnswer, error) {
	return tx.state.listAnswers(sessionID), nil
}

func (tx *memTx) GetResult(_ context.Context, sessionID string) (domain.Result, error) {
	return tx.state.result(sessionID)
}

func (tx *memTx) CreateResult(_ context.Context, result domain.Result) error {
	if _, ok := tx.state.results[result.SessionID]; ok {
		return errResultExists
	}
	tx.state.results[result.SessionID] = result
	return nil
}

func (tx *memTx) FinishSession(_ context.Context, sessionID string, finishedAt time.Time) error {
	session, err := tx.state.session(sessionID)
	if err != nil {
		return err
	}
	at := finishedAt
	session.FinishedAt = &at
	tx.state.sessions[sessionID] = session
	return nil
}
