package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogBridge forwards gorm messages to a logrus logger.
type GormLogBridge struct {
	logger  *log.Logger
	level   gormlogger.LogLevel
	showSQL bool
}

// NewGormLogger builds a bridge. Statements are only logged (at debug level)
// when showSQL is set; slow statements and errors are always logged.
func NewGormLogger(logger *log.Logger, showSQL bool) gormlogger.Interface {
	return &GormLogBridge{logger: logger, level: gormlogger.Warn, showSQL: showSQL}
}

func (l *GormLogBridge) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogBridge) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.WithContext(ctx).Infof(msg, args...)
	}
}

func (l *GormLogBridge) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.WithContext(ctx).Warnf(msg, args...)
	}
}

func (l *GormLogBridge) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.WithContext(ctx).Errorf(msg, args...)
	}
}

func (l *GormLogBridge) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.entry(ctx, sql, rows, elapsed).WithError(err).Error("sql.error")
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.entry(ctx, sql, rows, elapsed).Warn("sql.slow")
	case l.showSQL:
		sql, rows := fc()
		l.entry(ctx, sql, rows, elapsed).Debug("sql")
	}
}

func (l *GormLogBridge) entry(ctx context.Context, sql string, rows int64, elapsed time.Duration) *log.Entry {
	return l.logger.WithContext(ctx).WithFields(log.Fields{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": fmt.Sprintf("%.3f", float64(elapsed)/float64(time.Millisecond)),
	})
}
