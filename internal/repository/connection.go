package repository

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/domain"
)

// DatabaseConfig holds database connection pool tuning, grounded on the
// teacher's repository.DatabaseConfig.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewDatabaseConnection opens a GORM postgres connection and tunes the pool.
func NewDatabaseConnection(cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("repository: underlying sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 30 * time.Minute
	}
	idleTime := cfg.ConnMaxIdleTime
	if idleTime == 0 {
		idleTime = 5 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)

	return db, nil
}

// AutoMigrate runs migrations for every domain model the orchestrator owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Organization{},
		&domain.ApiToken{},
		&domain.Agent{},
		&domain.ContextProfile{},
		&domain.Call{},
		&domain.Turn{},
		&domain.VoiceProfile{},
		&domain.Recording{},
		&domain.CallEvent{},
		&domain.Webhook{},
		&domain.WebhookDelivery{},
		&domain.CorrectionDictionaryEntry{},
		&domain.CriticalWordListEntry{},
		&domain.QACriterion{},
		&domain.QAEvaluation{},
	)
}

// NewRepositoryManager opens the database, runs migrations and returns a
// ready RepositoryManager, the way the teacher's NewRepositoryManager does.
func NewRepositoryManager(cfg DatabaseConfig) (RepositoryManager, error) {
	db, err := NewDatabaseConnection(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("repository: underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("repository: auto migrate: %w", err)
	}

	return NewGormRepositoryManager(db), nil
}
