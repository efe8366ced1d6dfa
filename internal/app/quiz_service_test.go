package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/memory"
)

var opensAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service  *app.QuizService
	sessions *memory.SessionStore
	profiles *memory.ProfileStore
	events   *recordingSink
	clock    *testClock
}

func newFixture(t *testing.T, quizzes ...domain.Quiz) *fixture {
	t.Helper()
	if len(quizzes) == 0 {
		quizzes = []domain.Quiz{weightedQuiz()}
	}
	loader, err := memory.NewStaticQuizLoader(quizzes)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	f := &fixture{
		sessions: memory.NewSessionStore(),
		profiles: memory.NewProfileStore(),
		events:   &recordingSink{},
		clock:    &testClock{now: opensAt.Add(10 * time.Minute)},
	}
	f.service = app.NewQuizService(app.Deps{
		Quizzes:  memory.NewQuizRepository(loader, 5*time.Minute),
		Profiles: f.profiles,
		Sessions: f.sessions,
		Events:   f.events,
		Clock:    f.clock.Now,
	})
	return f
}

func student(id string) domain.Participant {
	return domain.Participant{ID: id, Kind: domain.ParticipantUser, Role: domain.RoleStudent}
}

// weightedQuiz has three questions worth 1, 2 and 3 points.
func weightedQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Weighted",
		Subject:          "Math",
		LevelType:        domain.LevelSchool,
		StartLevel:       1,
		EndLevel:         4,
		StartTime:        opensAt,
		EndTime:          opensAt.Add(4 * time.Hour),
		TimeLimitMinutes: 30,
		MaxAttempts:      2,
		PassPercentage:   60,
		Questions: []domain.Question{
			{ID: "q1", Points: 1, Answers: []domain.Answer{{ID: "q1-right", IsCorrect: true}, {ID: "q1-wrong"}}},
			{ID: "q2", Points: 2, Answers: []domain.Answer{{ID: "q2-right", IsCorrect: true}, {ID: "q2-wrong"}}},
			{ID: "q3", Points: 3, Answers: []domain.Answer{{ID: "q3-right", IsCorrect: true}, {ID: "q3-wrong"}}},
		},
	}
}

func TestWeightedScoring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	mustRecord(t, f, session.ID, "q1", "q1-right")
	mustRecord(t, f, session.ID, "q2", "q2-wrong")
	mustRecord(t, f, session.ID, "q3", "q3-right")

	result, err := f.service.Finish(ctx, session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Score != 4 || result.CorrectAnswers != 2 || result.TotalQuestions != 3 {
		t.Fatalf("expected score 4, correct 2, total 3, got %+v", result)
	}
	if p := result.Percentage(); p < 66.6 || p > 66.7 {
		t.Fatalf("expected ~66.7%%, got %f", p)
	}

	summary, err := f.service.Summary(ctx, session.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !summary.Passed || summary.Rank != 1 || summary.TotalParticipants != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := f.service.Finish(ctx, session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	f.clock.Advance(time.Minute)
	second, err := f.service.Finish(ctx, session.ID)
	if err != nil {
		t.Fatalf("finish again: %v", err)
	}
	if first.ID != second.ID || !first.CompletedAt.Equal(second.CompletedAt) {
		t.Fatalf("expected same result, got %+v and %+v", first, second)
	}
	results, _ := f.sessions.ListResults(ctx, "quiz-1")
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
	if got := f.events.count(domain.EventSessionFinished); got != 1 {
		t.Fatalf("expected one finished event, got %d", got)
	}
}

func TestConcurrentFinishCreatesOneResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.service.Finish(ctx, session.ID)
			if err != nil {
				t.Errorf("finish: %v", err)
				return
			}
			ids[i] = result.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one result id, got %v", ids)
		}
	}
	results, _ := f.sessions.ListResults(ctx, "quiz-1")
	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
}

func TestStartResumesOpenSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected resume of %s, got %s", first.ID, second.ID)
	}
	if got := f.events.count(domain.EventSessionStarted); got != 1 {
		t.Fatalf("expected one started event, got %d", got)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := student("u1")

	for i := 0; i < 2; i++ {
		session, err := f.service.StartOrResume(ctx, p, "quiz-1")
		if err != nil {
			t.Fatalf("start attempt %d: %v", i+1, err)
		}
		if _, err := f.service.Finish(ctx, session.ID); err != nil {
			t.Fatalf("finish attempt %d: %v", i+1, err)
		}
	}

	if _, err := f.service.StartOrResume(ctx, p, "quiz-1"); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts exhausted, got %v", err)
	}
	left, err := f.service.AttemptsRemaining(ctx, p, "quiz-1")
	if err != nil || left != 0 {
		t.Fatalf("expected no attempts left, got %d (%v)", left, err)
	}
}

func TestUserAndGroupWithSameIDKeepSeparateSessions(t *testing.T) {
	ctx := context.Background()
	quiz := weightedQuiz()
	quiz.MaxAttempts = 1
	f := newFixture(t, quiz)
	user := domain.Participant{ID: "7", Kind: domain.ParticipantUser, Role: domain.RoleStudent}
	group := domain.Participant{ID: "7", Kind: domain.ParticipantGroup, Role: domain.RoleGroupLeader}

	userSession, err := f.service.StartOrResume(ctx, user, "quiz-1")
	if err != nil {
		t.Fatalf("start user: %v", err)
	}
	groupSession, err := f.service.StartOrResume(ctx, group, "quiz-1")
	if err != nil {
		t.Fatalf("start group: %v", err)
	}
	if userSession.ID == groupSession.ID {
		t.Fatalf("user and group share session %s", userSession.ID)
	}
	if groupSession.ParticipantKind != domain.ParticipantGroup {
		t.Fatalf("expected group session, got %+v", groupSession)
	}

	if _, err := f.service.Finish(ctx, userSession.ID); err != nil {
		t.Fatalf("finish user: %v", err)
	}
	if _, err := f.service.StartOrResume(ctx, user, "quiz-1"); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected user attempts exhausted, got %v", err)
	}
	resumed, err := f.service.StartOrResume(ctx, group, "quiz-1")
	if err != nil || resumed.ID != groupSession.ID {
		t.Fatalf("expected group to resume %s, got %+v (%v)", groupSession.ID, resumed, err)
	}
	if left, _ := f.service.AttemptsRemaining(ctx, group, "quiz-1"); left != 1 {
		t.Fatalf("expected group to keep its attempt, got %d", left)
	}

	history, err := f.service.History(ctx, group)
	if err != nil || history.TotalQuizzes != 0 {
		t.Fatalf("expected empty group history, got %+v (%v)", history, err)
	}
}

func TestStartRejectsInactiveAndIneligible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.clock.Advance(-time.Hour)
	if _, err := f.service.StartOrResume(ctx, student("u1"), "quiz-1"); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected not active before window, got %v", err)
	}
	f.clock.Advance(time.Hour)

	_ = f.profiles.SetProfile(ctx, domain.LevelProfile{ParticipantID: "u2", LevelType: domain.LevelUniversity, CurrentLevel: 2})
	if _, err := f.service.StartOrResume(ctx, student("u2"), "quiz-1"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected level type mismatch to be rejected, got %v", err)
	}

	_ = f.profiles.SetProfile(ctx, domain.LevelProfile{ParticipantID: "u3", LevelType: domain.LevelSchool, CurrentLevel: 9})
	if _, err := f.service.StartOrResume(ctx, student("u3"), "quiz-1"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected level out of range to be rejected, got %v", err)
	}

	teacher := domain.Participant{ID: "t1", Kind: domain.ParticipantUser, Role: domain.RoleTeacher}
	if _, err := f.service.StartOrResume(ctx, teacher, "quiz-1"); err != nil {
		t.Fatalf("expected teacher to bypass level checks, got %v", err)
	}
}

func TestCanAccessCreatesProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.service.CanAccess(ctx, student("fresh"), "quiz-1")
	if err != nil || !ok {
		t.Fatalf("expected default profile to be eligible, got %v (%v)", ok, err)
	}
	profile, _ := f.profiles.EnsureProfile(ctx, "fresh")
	if profile.LevelType != domain.LevelSchool || profile.CurrentLevel != 1 {
		t.Fatalf("expected default profile, got %+v", profile)
	}
}

func TestRecordOverwritesAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, _ := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	mustRecord(t, f, session.ID, "q3", "q3-right")
	mustRecord(t, f, session.ID, "q3", "q3-wrong")

	result, err := f.service.Finish(ctx, session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if result.Score != 0 || result.CorrectAnswers != 0 {
		t.Fatalf("expected only the second answer scored, got %+v", result)
	}
}

func TestRecordPreconditions(t *testing.T) {
	ctx := context.Background()
	other := weightedQuiz()
	other.ID = "quiz-2"
	other.Questions = []domain.Question{
		{ID: "other-q", Points: 1, Answers: []domain.Answer{{ID: "other-a", IsCorrect: true}}},
	}
	f := newFixture(t, weightedQuiz(), other)

	session, _ := f.service.StartOrResume(ctx, student("u1"), "quiz-1")

	if err := f.service.Record(ctx, session.ID, "other-q", "other-a"); !errors.Is(err, domain.ErrQuestionMismatch) {
		t.Fatalf("expected question mismatch, got %v", err)
	}
	if err := f.service.Record(ctx, session.ID, "q1", "q2-right"); !errors.Is(err, domain.ErrAnswerMismatch) {
		t.Fatalf("expected answer mismatch, got %v", err)
	}
	if err := f.service.Record(ctx, session.ID, "q1", "q1-right", "q1-wrong"); !errors.Is(err, domain.ErrAnswerMismatch) {
		t.Fatalf("expected single-choice to reject two answers, got %v", err)
	}

	if _, err := f.service.Finish(ctx, session.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := f.service.Record(ctx, session.ID, "q1", "q1-right"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}
}

func TestExpiredSessionAutoFinishesOnRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, _ := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	mustRecord(t, f, session.ID, "q2", "q2-right")

	f.clock.Advance(31 * time.Minute)
	if err := f.service.Record(ctx, session.ID, "q3", "q3-right"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected session closed after time limit, got %v", err)
	}

	result, err := f.service.Result(ctx, session.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Score != 2 || result.CorrectAnswers != 1 {
		t.Fatalf("expected only answers before expiry scored, got %+v", result)
	}
	if !f.events.autoFinished() {
		t.Fatalf("expected auto-finished event")
	}
}

func TestExpiredSessionAutoFinishesOnPoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, _ := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	mustRecord(t, f, session.ID, "q1", "q1-right")

	state, err := f.service.Poll(ctx, session.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Result != nil || state.TimeRemaining != 30*time.Minute || state.Answered != 1 || state.Progress != 33 {
		t.Fatalf("unexpected open state %+v", state)
	}

	f.clock.Advance(30 * time.Minute)
	state, err = f.service.Poll(ctx, session.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Result == nil || !state.Session.IsFinished() || state.Result.Score != 1 {
		t.Fatalf("expected auto-finished state, got %+v", state)
	}
}

func TestExpiredSessionAutoFinishesOnStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := student("u1")

	first, _ := f.service.StartOrResume(ctx, p, "quiz-1")
	f.clock.Advance(45 * time.Minute)

	second, err := f.service.StartOrResume(ctx, p, "quiz-1")
	if err != nil {
		t.Fatalf("start after expiry: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a fresh session after expiry")
	}
	if _, err := f.service.Result(ctx, first.ID); err != nil {
		t.Fatalf("expected expired session scored: %v", err)
	}
}

func TestResultNotFoundWhileOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, _ := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	if _, err := f.service.Result(ctx, session.ID); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected result not found, got %v", err)
	}
}

func TestRankBreaksTiesByCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, ok, err := f.service.Rank(ctx, "quiz-1", "nothing"); ok || err != nil {
		t.Fatalf("expected no rank without results, got ok=%v err=%v", ok, err)
	}

	// scores 1, 3, 3, 6 finished in that order
	plans := [][]string{{"q1"}, {"q3"}, {"q1", "q2"}, {"q1", "q2", "q3"}}
	results := make([]domain.Result, 0, len(plans))
	for i, plan := range plans {
		p := domain.Participant{ID: string(rune('a' + i)), Role: domain.RoleStudent}
		session, err := f.service.StartOrResume(ctx, p, "quiz-1")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		for _, q := range plan {
			mustRecord(t, f, session.ID, q, q+"-right")
		}
		result, err := f.service.Finish(ctx, session.ID)
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		results = append(results, result)
		f.clock.Advance(time.Second)
	}

	want := []int{4, 2, 3, 1}
	for i, r := range results {
		rank, ok, err := f.service.Rank(ctx, "quiz-1", r.ID)
		if err != nil || !ok {
			t.Fatalf("rank: ok=%v err=%v", ok, err)
		}
		if rank != want[i] {
			t.Fatalf("result %d: expected rank %d, got %d", i, want[i], rank)
		}
	}
	if _, _, err := f.service.Rank(ctx, "quiz-1", "unknown"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected unknown result error, got %v", err)
	}
}

func TestStatsAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good, _ := f.service.StartOrResume(ctx, student("u1"), "quiz-1")
	mustRecord(t, f, good.ID, "q3", "q3-right")
	mustRecord(t, f, good.ID, "q2", "q2-right")
	_, _ = f.service.Finish(ctx, good.ID)

	poor, _ := f.service.StartOrResume(ctx, student("u2"), "quiz-1")
	mustRecord(t, f, poor.ID, "q1", "q1-right")
	_, _ = f.service.Finish(ctx, poor.ID)

	stats, err := f.service.Stats(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Participants != 2 || stats.Passed != 1 || stats.Failed != 1 || stats.MaxScore != 5 || stats.MinScore != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AverageScore != 3 || len(stats.Top) != 2 || stats.Top[0].ParticipantID != "u1" {
		t.Fatalf("unexpected stats %+v", stats)
	}

	history, err := f.service.History(ctx, student("u1"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.TotalQuizzes != 1 || history.Passed != 1 || history.Best == nil || history.Best.Score != 5 {
		t.Fatalf("unexpected history %+v", history)
	}
	if math := history.BySubject["Math"]; math.Count != 1 || math.PassRate != 100 {
		t.Fatalf("unexpected subject stats %+v", math)
	}
}

func TestTiming(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	timing, err := f.service.Timing(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("timing: %v", err)
	}
	if !timing.IsActive || timing.Status != domain.StatusActive || timing.TimeLeft != 4*time.Hour-10*time.Minute {
		t.Fatalf("unexpected timing %+v", timing)
	}

	f.clock.Advance(-time.Hour)
	timing, _ = f.service.Timing(ctx, "quiz-1")
	if timing.IsActive || timing.Status != domain.StatusPublished || timing.TimeLeft != 50*time.Minute {
		t.Fatalf("unexpected timing before start %+v", timing)
	}
}

func mustRecord(t *testing.T, f *fixture, sessionID, questionID string, answerIDs ...string) {
	t.Helper()
	if err := f.service.Record(context.Background(), sessionID, questionID, answerIDs...); err != nil {
		t.Fatalf("record %s: %v", questionID, err)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count(typ domain.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (s *recordingSink) autoFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Type == domain.EventSessionFinished && e.AutoFinished {
			return true
		}
	}
	return false
}
