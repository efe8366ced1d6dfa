package cli

import (
	"context"
	"fmt"

	"school-quiz-service/internal/config"
	"school-quiz-service/internal/infra/postgres"
	redisinfra "school-quiz-service/internal/infra/redis"
	"school-quiz-service/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewImportCmd stores quiz content authored in YAML.
func NewImportCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate quizzes from a YAML file and store them in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "quizzes.yaml", "YAML file with a top-level quizzes list")
	return cmd
}

func runImport(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	quizzes, err := config.LoadQuizzes(file)
	if err != nil {
		return err
	}

	db := openDB(cfg.Postgres.URL)
	defer db.Close()
	if err := migrateDB(ctx, db, log); err != nil {
		return err
	}

	var cache *redisinfra.QuizRepository
	if cfg.Redis.Addr != "" {
		client := newRedisClient(cfg)
		defer client.Close()
		cache = redisinfra.NewQuizRepository(client, nil, 0)
	}

	writer := postgres.NewQuizWriter(db)
	for _, quiz := range quizzes {
		if err := writer.SaveQuiz(ctx, quiz); err != nil {
			return fmt.Errorf("import quiz %q: %w", quiz.ID, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, quiz.ID); err != nil {
				log.Warn("quiz cache invalidation failed", "quiz_id", quiz.ID, "error", err)
			}
		}
		log.Info("quiz imported", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	}
	log.Info("import finished", "file", file, "quizzes", len(quizzes))
	return nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
