package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/kclinic/internal/config"
	"github.com/goodtune/kclinic/internal/storage"
	"github.com/goodtune/kclinic/internal/storage/bolt"
	"github.com/goodtune/kclinic/internal/storage/memory"
	"github.com/goodtune/kclinic/internal/storage/mongo"
	"github.com/goodtune/kclinic/internal/storage/redis"
	"github.com/goodtune/kclinic/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

func main() {
	Execute()
}

// openStorage opens the backend selected by storage.type
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "redis":
		return redis.Open(cfg.Redis)
	case "bolt":
		return bolt.Open(cfg.Bolt.Path)
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Path)
	case "mongo":
		return mongo.Open(cfg.Mongo)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// storageLocation describes where the backend keeps its data, for logs
func storageLocation(cfg config.StorageConfig) string {
	switch cfg.Type {
	case "bolt":
		return cfg.Bolt.Path
	case "sqlite":
		return cfg.SQLite.Path
	case "mongo":
		return cfg.Mongo.URI + "/" + cfg.Mongo.Database
	case "memory":
		return "memory"
	default:
		return fmt.Sprintf("%s:%d/%d", cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
