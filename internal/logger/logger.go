package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/debulol/dota2-inhouse/internal/config"
)

func New(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level == zapcore.DebugLevel {
		zc.Development = true
	}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("db_driver", cfg.DBDriver),
		zap.Duration("room_ttl", cfg.RoomTTL),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Bool("relay", cfg.RedisAddr != ""),
		zap.String("log_level", level.String()),
	)
	return log, nil
}

var Module = fx.Provide(New)
