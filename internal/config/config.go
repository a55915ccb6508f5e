package config

import (
	"fmt"
	"mastery-tracker/internal/constants"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	APIBaseURL       string
	SeedAPIKey       string
	DBPath           string
	ServerPort       string
	LogLevel         string
	BatchSize        int
	BatchConcurrency int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		APIBaseURL:       strings.TrimRight(getEnv("GW2_API_BASE_URL", constants.DefaultAPIBaseURL), "/"),
		SeedAPIKey:       getEnv("GW2_API_KEY", ""),
		DBPath:           getEnv("DB_PATH", "mastery.db"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BatchSize:        constants.BatchSize,
		BatchConcurrency: constants.BatchConcurrency,
	}

	var err error
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", constants.BatchSize); err != nil {
		return nil, err
	}
	if cfg.BatchConcurrency, err = getEnvInt("BATCH_CONCURRENCY", constants.BatchConcurrency); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > constants.BatchSize {
		return nil, fmt.Errorf("BATCH_SIZE must be between 1 and %d, got %d", constants.BatchSize, cfg.BatchSize)
	}
	if cfg.BatchConcurrency <= 0 {
		return nil, fmt.Errorf("BATCH_CONCURRENCY must be positive, got %d", cfg.BatchConcurrency)
	}

	logger.Info().
		Str("api_base_url", cfg.APIBaseURL).
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("batch_size", cfg.BatchSize).
		Int("batch_concurrency", cfg.BatchConcurrency).
		Bool("seed_api_key", cfg.SeedAPIKey != "").
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

var Module = fx.Provide(Load)
