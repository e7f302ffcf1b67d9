package storage

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"kanban-api/domain"
)

// Options selects and tunes the relational store.
type Options struct {
	Driver  string
	DSN     string
	ShowSQL bool
	Logger  *log.Logger
}

// Open connects to the configured database. sqlite is the default driver;
// mysql is accepted for shared deployments.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(opts.DSN)
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(logger, opts.ShowSQL)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}
	if opts.Driver == "" || opts.Driver == "sqlite" {
		// sqlite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Models lists every persisted entity in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Board{},
		&domain.Lane{},
		&domain.Category{},
		&domain.Item{},
		&domain.Collapsed{},
		&domain.Activity{},
		&domain.JwtKey{},
	}
}

// Migrate creates or updates the schema.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
