package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openMemory(t *testing.T, logger *log.Logger) *gorm.DB {
	t.Helper()
	db, err := Open(Options{Driver: "sqlite", DSN: ":memory:", Logger: logger})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestMigrateCreatesSchema(t *testing.T) {
	logger, _ := test.NewNullLogger()
	db := openMemory(t, logger)
	ctx := context.Background()

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}
	for _, table := range []string{"users", "boards", "lanes", "categories", "items", "collapsed", "activities", "jwt", "board_users"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
	if err := Ping(ctx, db); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestGormLogBridgeLogsErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	db := openMemory(t, logger)

	err := db.Exec("SELECT * FROM missing_table").Error
	if err == nil {
		t.Fatalf("expected query error")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel || entry.Message != "sql.error" {
		t.Fatalf("expected sql.error entry, got %+v", entry)
	}
	if entry.Data["sql"] != "SELECT * FROM missing_table" {
		t.Fatalf("unexpected sql field: %v", entry.Data["sql"])
	}
}

func TestGormLogBridgeLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	bridge := NewGormLogger(logger, false)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	bridge.Trace(ctx, time.Now(), stmt, nil)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("statements must stay quiet without showSQL")
	}

	bridge.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("record not found is not an error")
	}

	bridge.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if e := hook.LastEntry(); e == nil || e.Message != "sql.slow" || e.Level != log.WarnLevel {
		t.Fatalf("expected slow query warning, got %+v", e)
	}

	hook.Reset()
	NewGormLogger(logger, true).Trace(ctx, time.Now(), stmt, nil)
	if e := hook.LastEntry(); e == nil || e.Message != "sql" || e.Level != log.DebugLevel {
		t.Fatalf("expected debug statement, got %+v", e)
	}

	hook.Reset()
	bridge.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("boom"))
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("silent mode must not log")
	}
}
