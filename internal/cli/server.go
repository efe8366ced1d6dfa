package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/config"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/infra/memory"
	"school-quiz-service/internal/infra/postgres"
	"school-quiz-service/internal/infra/rabbitmq"
	redisinfra "school-quiz-service/internal/infra/redis"
	"school-quiz-service/internal/logger"
	transport "school-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		db   *bun.DB
		pool *pgxpool.Pool
	)
	if cfg.Postgres.URL != "" {
		db = openDB(cfg.Postgres.URL)
		defer db.Close()
		if err := migrateDB(ctx, db, log); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		defer redisClient.Close()
	}

	var loader memory.QuizLoader
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	} else {
		loader, err = seedLoader(cfg)
		if err != nil {
			return err
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, quizTTL))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var (
		sessions app.SessionRepository
		profiles app.ProfileRepository
	)
	if db != nil {
		sessions = postgres.NewSessionStore(db)
		profiles = postgres.NewProfileStore(db)
	} else {
		sessions = memory.NewSessionStore()
		profiles = memory.NewProfileStore()
	}

	var leaderboard app.Leaderboard
	if redisClient != nil {
		leaderboard = redisinfra.NewLeaderboard(redisClient, sessions, config.TTLDuration(cfg.Leaderboard.TTL, time.Hour))
	}

	var events app.EventSink = app.NewLogSink(log)
	if cfg.Events.RabbitMQ.URL != "" {
		queue := cfg.Events.RabbitMQ.Queue
		if queue == "" {
			queue = "quiz.session.events"
		}
		publisher, err := rabbitmq.Dial(cfg.Events.RabbitMQ.URL, queue)
		if err != nil {
			return err
		}
		defer publisher.Close()
		events = publisher
	}

	service := app.NewQuizService(app.Deps{
		Quizzes:     quizRepo,
		Profiles:    profiles,
		Sessions:    sessions,
		Leaderboard: leaderboard,
		Events:      events,
		Logger:      log,
	})
	pollInterval := config.TTLDuration(cfg.Server.PollInterval, time.Second)
	wsHandler := transport.NewWSHandler(service, log, pollInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	transport.NewReportHandler(service, log).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service",
			"port", finalPort,
			"postgres", db != nil,
			"redis", redisClient != nil,
			"rabbitmq", cfg.Events.RabbitMQ.URL != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedLoader serves quiz.seedFile when set, otherwise a demo quiz that is open today.
func seedLoader(cfg config.Config) (*memory.StaticQuizLoader, error) {
	if cfg.Quiz.SeedFile != "" {
		quizzes, err := config.LoadQuizzes(cfg.Quiz.SeedFile)
		if err != nil {
			return nil, err
		}
		return memory.NewStaticQuizLoader(quizzes)
	}
	return memory.NewStaticQuizLoader(sampleQuizzes(time.Now()))
}

func sampleQuizzes(now time.Time) []domain.Quiz {
	day := now.UTC().Truncate(24 * time.Hour)
	return []domain.Quiz{
		{
			ID:               "quiz-1",
			Title:            "Warm-up arithmetic",
			Subject:          "math",
			LevelType:        domain.LevelSchool,
			StartLevel:       1,
			EndLevel:         11,
			StartTime:        day,
			EndTime:          day.Add(24 * time.Hour),
			Status:           domain.StatusPublished,
			TimeLimitMinutes: 10,
			MaxAttempts:      3,
			PassPercentage:   60,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Text:   "What is 2 + 2?",
					Points: 1,
					Answers: []domain.Answer{
						{ID: "q1-a", Text: "3"},
						{ID: "q1-b", Text: "4", IsCorrect: true},
						{ID: "q1-c", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Text:   "Which of these are prime?",
					Type:   domain.QuestionMultipleChoice,
					Points: 2,
					Answers: []domain.Answer{
						{ID: "q2-a", Text: "2", IsCorrect: true},
						{ID: "q2-b", Text: "4"},
						{ID: "q2-c", Text: "7", IsCorrect: true},
					},
				},
				{
					ID:          "q3",
					Text:        "Zero is an even number.",
					Type:        domain.QuestionTrueFalse,
					Points:      1,
					Explanation: "0 = 2 * 0",
					Answers: []domain.Answer{
						{ID: "q3-t", Text: "true", IsCorrect: true},
						{ID: "q3-f", Text: "false"},
					},
				},
			},
		},
	}
}
