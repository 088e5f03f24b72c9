package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kdrangari/msgtracker-api/pkg/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type dialectorFactory func(dsn string) gorm.Dialector

var dialectors = map[string]dialectorFactory{
	"postgres": postgres.Open,
	"sqlite":   sqlite.Open,
}

// NewConnection opens the database configured by DATABASE_DRIVER and DATABASE_DSN.
func NewConnection(cfg *config.Config) (*gorm.DB, error) {
	factory, ok := dialectors[cfg.DatabaseDriver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(factory(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DatabaseDriver, err)
	}

	if cfg.DatabaseDriver == "sqlite" {
		// SQLite only honours ON DELETE CASCADE with foreign keys switched on.
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable sqlite foreign keys: %w", err)
		}
	}

	return db, nil
}
