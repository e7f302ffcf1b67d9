// Package storagetest opens migrated in-memory databases for tests.
package storagetest

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanban-api/storage"
)

// NewDB returns a fresh, migrated in-memory sqlite database that is closed
// when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	db, err := storage.Open(storage.Options{Driver: "sqlite", DSN: ":memory:", Logger: logger})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := storage.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
