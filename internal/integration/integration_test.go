package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/postgres"
	pgmigrations "school-quiz-service/internal/infra/postgres/migrations"
	infraredis "school-quiz-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

type stack struct {
	service  *app.QuizService
	sessions *postgres.SessionStore
	profiles *postgres.ProfileStore
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := openMigrated(t, ctx, pgURL)
	if err := postgres.NewQuizWriter(db).SaveQuiz(ctx, sampleQuiz(time.Now())); err != nil {
		t.Fatalf("save quiz: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	sessions := postgres.NewSessionStore(db)
	profiles := postgres.NewProfileStore(db)
	service := app.NewQuizService(app.Deps{
		Quizzes:     infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute),
		Profiles:    profiles,
		Sessions:    sessions,
		Leaderboard: infraredis.NewLeaderboard(redisClient, sessions, 5*time.Minute),
	})
	return &stack{service: service, sessions: sessions, profiles: profiles}
}

func student(id string) domain.Participant {
	return domain.Participant{ID: id, Kind: domain.ParticipantUser, Role: domain.RoleStudent}
}

func TestTakeQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	alice, err := s.service.StartOrResume(ctx, student("alice"), "quiz-1")
	if err != nil {
		t.Fatalf("start alice: %v", err)
	}
	resumed, err := s.service.StartOrResume(ctx, student("alice"), "quiz-1")
	if err != nil || resumed.ID != alice.ID {
		t.Fatalf("expected resume of %s, got %s (%v)", alice.ID, resumed.ID, err)
	}
	bob, err := s.service.StartOrResume(ctx, student("bob"), "quiz-1")
	if err != nil {
		t.Fatalf("start bob: %v", err)
	}

	mustRecord(t, s.service, alice.ID, "q1", "q1-b")
	mustRecord(t, s.service, alice.ID, "q2", "q2-a", "q2-c")
	mustRecord(t, s.service, bob.ID, "q1", "q1-a")
	mustRecord(t, s.service, bob.ID, "q1", "q1-b")

	bobResult, err := s.service.Finish(ctx, bob.ID)
	if err != nil {
		t.Fatalf("finish bob: %v", err)
	}
	aliceResult, err := s.service.Finish(ctx, alice.ID)
	if err != nil {
		t.Fatalf("finish alice: %v", err)
	}
	if aliceResult.Score != 3 || aliceResult.MaxScore != 3 || bobResult.Score != 1 {
		t.Fatalf("unexpected scores alice=%+v bob=%+v", aliceResult, bobResult)
	}

	again, err := s.service.Finish(ctx, alice.ID)
	if err != nil || again.ID != aliceResult.ID {
		t.Fatalf("finish should be idempotent, got %+v (%v)", again, err)
	}

	rank, ok, err := s.service.Rank(ctx, "quiz-1", aliceResult.ID)
	if err != nil || !ok || rank != 1 {
		t.Fatalf("expected alice rank 1, got %d %v %v", rank, ok, err)
	}
	rank, ok, err = s.service.Rank(ctx, "quiz-1", bobResult.ID)
	if err != nil || !ok || rank != 2 {
		t.Fatalf("expected bob rank 2, got %d %v %v", rank, ok, err)
	}

	if err := s.service.Record(ctx, alice.ID, "q1", "q1-a"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := s.service.StartOrResume(ctx, student("alice"), "quiz-1"); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}

	profile, err := s.profiles.EnsureProfile(ctx, "alice")
	if err != nil || profile.LevelType != domain.LevelSchool || profile.CurrentLevel != 1 {
		t.Fatalf("expected default profile, got %+v (%v)", profile, err)
	}
}

func TestGroupAndUserSessionsStaySeparate(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	user := student("7")
	group := domain.Participant{ID: "7", Kind: domain.ParticipantGroup, Role: domain.RoleGroupLeader}

	userSession, err := s.service.StartOrResume(ctx, user, "quiz-1")
	if err != nil {
		t.Fatalf("start user: %v", err)
	}
	groupSession, err := s.service.StartOrResume(ctx, group, "quiz-1")
	if err != nil {
		t.Fatalf("start group: %v", err)
	}
	if userSession.ID == groupSession.ID {
		t.Fatalf("user and group share session %s", userSession.ID)
	}

	if _, err := s.service.Finish(ctx, userSession.ID); err != nil {
		t.Fatalf("finish user: %v", err)
	}
	resumed, err := s.service.StartOrResume(ctx, group, "quiz-1")
	if err != nil || resumed.ID != groupSession.ID {
		t.Fatalf("expected group to resume %s, got %+v (%v)", groupSession.ID, resumed, err)
	}
	history, err := s.service.History(ctx, group)
	if err != nil || history.TotalQuizzes != 0 {
		t.Fatalf("expected empty group history, got %+v (%v)", history, err)
	}

	entries, err := s.service.ListQuizzes(ctx, user, app.QuizFilter{})
	if err != nil || len(entries) != 1 || entries[0].Quiz.ID != "quiz-1" {
		t.Fatalf("expected quiz-1 in the catalog, got %+v (%v)", entries, err)
	}
}

func TestConcurrentStartAndFinish(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := s.service.StartOrResume(ctx, student("carol"), "quiz-1")
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			mu.Lock()
			ids[session.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != 1 {
		t.Fatalf("expected one open session, got %d", len(ids))
	}

	var sessionID string
	for id := range ids {
		sessionID = id
	}
	mustRecord(t, s.service, sessionID, "q1", "q1-b")

	results := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.Finish(ctx, sessionID)
			if err != nil {
				t.Errorf("finish: %v", err)
				return
			}
			results <- result.ID
		}()
	}
	wg.Wait()
	close(results)

	distinct := make(map[string]struct{})
	for id := range results {
		distinct[id] = struct{}{}
	}
	if len(distinct) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(distinct))
	}
	stored, err := s.sessions.ListResults(ctx, "quiz-1")
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored result, got %d (%v)", len(stored), err)
	}
}

func mustRecord(t *testing.T, service *app.QuizService, sessionID, questionID string, answerIDs ...string) {
	t.Helper()
	if err := service.Record(context.Background(), sessionID, questionID, answerIDs...); err != nil {
		t.Fatalf("record %s: %v", questionID, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openMigrated(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// sampleQuiz is open for an hour either side of now and allows one attempt.
func sampleQuiz(now time.Time) domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Arithmetic",
		Subject:          "math",
		LevelType:        domain.LevelSchool,
		StartLevel:       1,
		EndLevel:         3,
		StartTime:        now.Add(-time.Hour),
		EndTime:          now.Add(time.Hour),
		Status:           domain.StatusPublished,
		TimeLimitMinutes: 15,
		MaxAttempts:      1,
		PassPercentage:   50,
		Questions: []domain.Question{
			{
				ID:     "q1",
				Text:   "What is 2 + 2?",
				Points: 1,
				Answers: []domain.Answer{
					{ID: "q1-a", Text: "3"},
					{ID: "q1-b", Text: "4", IsCorrect: true},
				},
			},
			{
				ID:     "q2",
				Text:   "Which are prime?",
				Type:   domain.QuestionMultipleChoice,
				Points: 2,
				Answers: []domain.Answer{
					{ID: "q2-a", Text: "2", IsCorrect: true},
					{ID: "q2-b", Text: "4"},
					{ID: "q2-c", Text: "7", IsCorrect: true},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
