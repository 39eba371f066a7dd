package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/infra/memory"
	"quiz-proctor-service/internal/infra/postgres"
	pgmigrations "quiz-proctor-service/internal/infra/postgres/migrations"
	redisstore "quiz-proctor-service/internal/infra/redis"
	"quiz-proctor-service/internal/logger"
)

// NewMigrateCmd applies database migrations and optionally seeds the
// question set from quiz.content_path.
func NewMigrateCmd(configPath *string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "upsert quiz.content_path into question_sets")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, seed bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	if seed {
		return seedQuestionSet(ctx, cfg, log)
	}
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	db := postgres.OpenDB(cfg.Postgres.URL)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info().Msg("no new migrations")
		return nil
	}
	log.Info().Str("group", group.String()).Msg("migrations applied")
	return nil
}

func seedQuestionSet(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	set, err := loadSeedQuestionSet(ctx, cfg)
	if err != nil {
		return err
	}

	res := newBackends(cfg, log)
	defer res.Close()
	pool, err := res.pgPool(ctx)
	if err != nil {
		return err
	}
	if err := postgres.NewQuestionSetLoader(pool).SaveQuestionSet(ctx, set); err != nil {
		return err
	}
	if err := invalidateCachedQuestionSet(ctx, res, set.ID); err != nil {
		return err
	}
	log.Info().Str("quiz", set.ID).Int("questions", set.Len()).Msg("question set seeded")
	return nil
}

// loadSeedQuestionSet reads quiz.content_path and rejects malformed content
// before it reaches the database.
func loadSeedQuestionSet(ctx context.Context, cfg config.Config) (domain.QuestionSet, error) {
	if cfg.Quiz.ContentPath == "" {
		return domain.QuestionSet{}, errors.New("quiz.content_path is required to seed")
	}
	set, err := memory.NewFileLoader(cfg.Quiz.ContentPath).LoadQuestionSet(ctx, cfg.Quiz.ID)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	if err := set.Validate(); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("seed %s: %w", cfg.Quiz.ContentPath, err)
	}
	return set, nil
}

// invalidateCachedQuestionSet drops the redis copy of freshly seeded content.
func invalidateCachedQuestionSet(ctx context.Context, res *backends, id string) error {
	if res.cfg.Redis.Addr == "" {
		return nil
	}
	client, err := res.redis(ctx)
	if err != nil {
		return err
	}
	if err := redisstore.NewQuestionSetRepository(client, nil, 0).Invalidate(ctx, id); err != nil {
		return fmt.Errorf("invalidate cached question set: %w", err)
	}
	res.log.Info().Str("quiz", id).Msg("cached question set invalidated")
	return nil
}
