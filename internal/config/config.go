package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/debulol/dota2-inhouse/internal/constants"
)

type Config struct {
	HTTPAddr      string
	DBDriver      string // sqlite | postgres
	DatabaseURL   string
	RoomTTL       time.Duration
	SweepInterval time.Duration
	RedisAddr     string // relay disabled when empty
	RedisPassword string
	LogLevel      string
	CORSOrigins   []string
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DBDriver:      strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL:   getEnv("DATABASE_URL", "file:inhouse.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.RoomTTL, err = getDuration("ROOM_TTL", constants.DefaultRoomTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", constants.DefaultSweepInterval); err != nil {
		return nil, err
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if os.Getenv("DATABASE_URL") == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres")
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)
