package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Redis      RedisConfig      `yaml:"redis" envPrefix:"REDIS_"`
	Postgres   PostgresConfig   `yaml:"postgres" envPrefix:"POSTGRES_"`
	Quiz       QuizConfig       `yaml:"quiz" envPrefix:"QUIZ_"`
	Instructor InstructorConfig `yaml:"instructor" envPrefix:"INSTRUCTOR_"`
}

type ServerConfig struct {
	Port           string   `yaml:"port" env:"PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	GinMode        string   `yaml:"gin_mode" env:"GIN_MODE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	FilePath string `yaml:"file_path" env:"FILE_PATH"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	TTL      string `yaml:"ttl" env:"TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type QuizConfig struct {
	ID            string `yaml:"id" env:"ID"`
	ContentPath   string `yaml:"content_path" env:"CONTENT_PATH"`
	CacheTTL      string `yaml:"cache_ttl" env:"CACHE_TTL"`
	MaxViolations int    `yaml:"max_violations" env:"MAX_VIOLATIONS"`
	Debounce      string `yaml:"debounce" env:"DEBOUNCE"`
}

type InstructorConfig struct {
	Passcode     string `yaml:"passcode" env:"PASSCODE"`
	PasscodeHash string `yaml:"passcode_hash" env:"PASSCODE_HASH"`
	TokenSecret  string `yaml:"token_secret" env:"TOKEN_SECRET"`
	TokenTTL     string `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// Default returns the settings used when no file or variable overrides them.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.GinMode = "release"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Storage.Driver = DriverMemory
	cfg.Storage.FilePath = "data/quiz-store.json"
	cfg.Redis.TTL = "24h"
	cfg.Quiz.ID = "default"
	cfg.Quiz.CacheTTL = "10m"
	cfg.Quiz.MaxViolations = 3
	cfg.Quiz.Debounce = "1s"
	cfg.Instructor.TokenTTL = "8h"
	return cfg
}

// Load reads an optional .env file, then the YAML config at path, then
// QUIZ_-prefixed environment variables. A missing YAML file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "QUIZ_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.FilePath == "" {
			return errors.New("storage.file_path is required for the file driver")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Quiz.MaxViolations < 1 {
		return errors.New("quiz.max_violations must be at least 1")
	}
	if c.Instructor.Passcode == "" && c.Instructor.PasscodeHash == "" {
		return errors.New("instructor.passcode or instructor.passcode_hash is required")
	}
	if c.Instructor.TokenSecret == "" {
		return errors.New("instructor.token_secret is required")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
