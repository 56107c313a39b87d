package db

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"iesb-saude-portal/config"
	"iesb-saude-portal/internal/model"
)

const sqlitePrefix = "sqlite://"

// Dialector picks the gorm driver from the DSN. "sqlite://path" opens a
// sqlite file (or ":memory:"); anything else is handed to postgres.
func Dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return postgres.Open(dsn)
}

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}

	db, err := gorm.Open(Dialector(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates the portal tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Session{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}
