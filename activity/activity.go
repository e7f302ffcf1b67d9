package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanban-api/domain"
)

const defaultRecentLimit = 100

// Mirror receives a copy of every stored activity record.
type Mirror interface {
	Name() string
	Publish(ctx context.Context, rec domain.Activity) error
}

// Log appends activity records. Records are never updated or deleted.
type Log struct {
	db      *gorm.DB
	mirrors []Mirror
	logger  *log.Logger
	now     func() time.Time
}

// New creates a Log writing to db and fanning out to mirrors.
func New(db *gorm.DB, logger *log.Logger, mirrors ...Mirror) *Log {
	if db == nil {
		panic("activity.New: db is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Log{db: db, mirrors: mirrors, logger: logger, now: time.Now}
}

// Record serializes both values, stamps the current time and stores the
// record, tagged with itemID when set. A record that cannot be serialized or
// stored is reported as an error. Mirror failures are logged and returned
// after the primary row is written.
func (l *Log) Record(ctx context.Context, comment string, oldValue, newValue any, itemID *int64) error {
	oldText, err := encode(oldValue)
	if err != nil {
		return fmt.Errorf("encode old value: %w", err)
	}
	newText, err := encode(newValue)
	if err != nil {
		return fmt.Errorf("encode new value: %w", err)
	}
	rec := domain.Activity{
		Comment:   comment,
		OldValue:  oldText,
		NewValue:  newText,
		Timestamp: l.now().Unix(),
		ItemID:    itemID,
	}
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		l.logger.WithError(err).WithField("comment", comment).Error("activity.store.failed")
		return fmt.Errorf("store activity: %w", err)
	}

	var errs []error
	for _, m := range l.mirrors {
		if err := m.Publish(ctx, rec); err != nil {
			l.logger.WithError(err).WithFields(log.Fields{
				"mirror":      m.Name(),
				"activity_id": rec.ID,
			}).Error("activity.mirror.failed")
			errs = append(errs, fmt.Errorf("%s mirror: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func encode(v any) (string, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var recs []domain.Activity
	err := l.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return recs, nil
}

// ForItem returns the records tagged with itemID, newest first.
func (l *Log) ForItem(ctx context.Context, itemID int64) ([]domain.Activity, error) {
	var recs []domain.Activity
	err := l.db.WithContext(ctx).Where("item_id = ?", itemID).Order("timestamp DESC").Order("id DESC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list item activity: %w", err)
	}
	return recs, nil
}
