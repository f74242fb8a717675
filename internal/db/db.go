package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"field-gateway/config"
	"field-gateway/internal/retry"
)

// Open returns the gorm dialector for the configured local driver.
func Open(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return sqlite.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported local driver %q", cfg.Driver)
	}
}

// Init opens the local database handle without requiring the database to be
// up. It waits for a first successful ping while ctx allows, retrying with
// backoff, and otherwise returns the handle anyway: the store reports
// unavailability per call and creates its schema once the database answers.
// Only an invalid configuration is an error.
func Init(ctx context.Context, cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Warn),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log := logrus.WithField("driver", cfg.Driver)
	err = retry.WithOperation(ctx, retry.LocalStoreDefaults(), func() error {
		return sqlDB.PingContext(ctx)
	}, "local store ping")
	if err != nil {
		log.WithError(err).Warn("Local database not reachable yet; records are refused until it is")
		return db, nil
	}

	log.Info("Local database connection established")
	return db, nil
}
