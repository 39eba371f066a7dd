package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/infra/jsonfile"
	"quiz-proctor-service/internal/infra/memory"
	"quiz-proctor-service/internal/infra/postgres"
	redisstore "quiz-proctor-service/internal/infra/redis"
)

// backends opens shared connections lazily and closes them in reverse order.
type backends struct {
	cfg config.Config
	log zerolog.Logger

	redisClient *redis.Client
	bunDB       *bun.DB
	pool        *pgxpool.Pool
	closers     []func() error
}

func newBackends(cfg config.Config, log zerolog.Logger) *backends {
	return &backends{cfg: cfg, log: log}
}

func (b *backends) Close() error {
	var result *multierror.Error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	b.closers = nil
	return result.ErrorOrNil()
}

func (b *backends) redis(ctx context.Context) (*redis.Client, error) {
	if b.redisClient != nil {
		return b.redisClient, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     b.cfg.Redis.Addr,
		Password: b.cfg.Redis.Password,
		DB:       b.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	b.log.Info().Str("addr", b.cfg.Redis.Addr).Msg("connected to redis")
	b.redisClient = client
	b.closers = append(b.closers, client.Close)
	return client, nil
}

func (b *backends) db(ctx context.Context) (*bun.DB, error) {
	if b.bunDB != nil {
		return b.bunDB, nil
	}
	db := postgres.OpenDB(b.cfg.Postgres.URL)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	b.bunDB = db
	b.closers = append(b.closers, db.Close)
	return db, nil
}

func (b *backends) pgPool(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := pgxpool.Connect(ctx, b.cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	b.pool = pool
	b.closers = append(b.closers, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}

// Store returns the configured persistence backend.
func (b *backends) Store(ctx context.Context) (app.Store, error) {
	switch b.cfg.Storage.Driver {
	case config.DriverMemory:
		b.log.Warn().Msg("using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil
	case config.DriverFile:
		return jsonfile.NewStore(b.cfg.Storage.FilePath)
	case config.DriverRedis:
		client, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client, config.TTLDuration(b.cfg.Redis.TTL, 24*time.Hour)), nil
	case config.DriverPostgres:
		db, err := b.db(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(db), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", b.cfg.Storage.Driver)
	}
}

// Questions returns the cached question set repository. Postgres content
// wins over content_path when both are configured; Redis caches when set.
func (b *backends) Questions(ctx context.Context) (app.QuestionSetRepository, error) {
	var loader memory.QuestionSetLoader
	switch {
	case b.cfg.Postgres.URL != "":
		pool, err := b.pgPool(ctx)
		if err != nil {
			return nil, err
		}
		loader = postgres.NewQuestionSetLoader(pool)
	case b.cfg.Quiz.ContentPath != "":
		loader = memory.NewFileLoader(b.cfg.Quiz.ContentPath)
	default:
		return nil, fmt.Errorf("no quiz content source: set quiz.content_path or postgres.url")
	}

	ttl := config.TTLDuration(b.cfg.Quiz.CacheTTL, 10*time.Minute)
	if b.cfg.Redis.Addr != "" {
		client, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewQuestionSetRepository(client, loader, ttl), nil
	}
	return memory.NewQuestionSetRepository(loader, ttl), nil
}
