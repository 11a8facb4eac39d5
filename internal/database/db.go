package database

import (
	"fmt"
	"time"

	"p2p/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, opts Options, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config(log))
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if opts.AutoMigrate {
		if err := Migrate(db); err != nil {
			log.WithError(err).Warn("failed to auto-migrate models")
		}
	}

	return db, nil
}

// Config is the gorm configuration shared by every dialect. Driver errors are
// translated so unique violations surface as gorm.ErrDuplicatedKey.
func Config(log *logrus.Logger) *gorm.Config {
	level := logger.Warn
	if log != nil && log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.PurchaseRequest{},
		&model.RequestItem{},
		&model.Approval{},
		&model.PurchaseOrder{},
		&model.POSequence{},
		&model.AuditLog{},
	)
}
