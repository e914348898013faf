package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func logDB(ctx context.Context, level slog.Level, msg, operation, outcome string, fields ...any) {
	attrs := append([]any{
		"module", "postgres",
		"layer", "adapter",
		"operation", operation,
		"outcome", outcome,
	}, fields...)
	slog.Default().Log(ctx, level, msg, attrs...)
}

// Connect opens a GORM pool against Postgres and pings it before returning.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*gorm.DB, error) {
	logDB(ctx, slog.LevelInfo, "postgres connect started", "connect", "start")
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(maxConns))
		sqlDB.SetMaxIdleConns(max(1, int(maxConns)/2))
	}
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logDB(ctx, slog.LevelInfo, "postgres connect completed", "connect", "success")
	return db, nil
}

// RunMigrations applies embedded migrations in lexical order, skipping the ones
// already recorded in schema_migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if err := db.WithContext(ctx).Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`).Error; err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	var applied []string
	if err := db.WithContext(ctx).Raw(`SELECT name FROM schema_migrations`).Scan(&applied).Error; err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}
	logDB(ctx, slog.LevelInfo, "postgres migrations started", "run_migrations", "start", "migration_count", len(names))

	for _, name := range names {
		if done[name] {
			continue
		}
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(raw)).Error; err != nil {
				return err
			}
			return tx.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, name).Error
		})
		if err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		logDB(ctx, slog.LevelInfo, "migration applied", "apply_migration", "success", "migration", name)
	}
	logDB(ctx, slog.LevelInfo, "postgres migrations completed", "run_migrations", "success")
	return nil
}
