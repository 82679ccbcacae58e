package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/debulol/dota2-inhouse/internal/config"
	"github.com/debulol/dota2-inhouse/internal/constants"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Now is the clock every stored timestamp goes through. Timestamps are UTC
// with whole seconds so that sqlite's text comparison orders them correctly.
func Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

func New(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	return Open(context.Background(), cfg.DBDriver, cfg.DatabaseURL, log)
}

// Open connects to driver ("sqlite" or "postgres") and runs migrations.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	log = log.Named("database")
	log.Info("connecting to database", zap.String("driver", driver))

	var (
		dialector gorm.Dialector
		dialect   goose.Dialect
	)
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
		dialect = goose.DialectPostgres
	case "sqlite":
		dialector = sqlite.Open(dsn)
		dialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        Now,
		Logger: gormlogger.New(zap.NewStdLog(log), gormlogger.Config{
			SlowThreshold:             constants.DBSlowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}

	if driver == "sqlite" {
		// One connection serializes writers, which is what row locks do on postgres.
		sqlDB.SetMaxOpenConns(1)
		if err := optimizeSQLite(sqlDB, dsn, log); err != nil {
			return nil, fmt.Errorf("failed to optimize SQLite: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(constants.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(constants.DBMaxIdleConns)
		sqlDB.SetConnMaxLifetime(constants.DBConnMaxLifetime)
	}

	if err := runMigrations(ctx, sqlDB, dialect, log); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect, log *zap.Logger) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	for _, r := range results {
		log.Debug("migration applied", zap.String("source", r.Source.Path), zap.Duration("took", r.Duration))
	}
	log.Info("migrations completed successfully", zap.Int("applied", len(results)))
	return nil
}

func optimizeSQLite(sqlDB *sql.DB, dsn string, log *zap.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"foreign_keys", "ON"},
		{"busy_timeout", "5000"},
		{"synchronous", "NORMAL"},
		{"temp_store", "MEMORY"},
	}
	if !strings.Contains(dsn, "mode=memory") && !strings.Contains(dsn, ":memory:") {
		pragmas = append(pragmas, struct {
			name  string
			value string
		}{"journal_mode", "WAL"})
	}

	for _, pragma := range pragmas {
		query := fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)
		if _, err := sqlDB.Exec(query); err != nil {
			log.Warn("failed to set pragma", zap.String("pragma", pragma.name), zap.Error(err))
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
		log.Debug("SQLite pragma set", zap.String("pragma", pragma.name), zap.String("value", pragma.value))
	}
	return nil
}

var Module = fx.Provide(New)
