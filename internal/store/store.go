package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"field-gateway/internal/errs"
	"field-gateway/internal/model"
)

// ErrStorageUnavailable is returned by Submit when the record could not be
// durably persisted. It is joined with errs.ErrConnection or errs.ErrWrite.
var ErrStorageUnavailable = errors.New("local storage unavailable")

// Store defines the local, append-only record store.
type Store interface {
	// Submit durably persists a new pending record and returns its id.
	Submit(ctx context.Context, sub model.Submission) (int64, error)
	// Pending returns up to limit unsynchronized records, oldest first.
	// A limit <= 0 returns every pending record.
	Pending(ctx context.Context, limit int) ([]model.Record, error)
	// Recent returns up to limit records of any sync state, newest first.
	Recent(ctx context.Context, limit int) ([]model.Record, error)
	// MarkSynced flags id as synchronized. Marking an already synced or
	// unknown id is a no-op.
	MarkSynced(ctx context.Context, id int64) error
	// PendingCount returns the number of unsynchronized records.
	PendingCount(ctx context.Context) (int64, error)
	// Ping reports whether the store can be reached.
	Ping(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time

	mu    sync.Mutex
	ready bool
}

// NewGormStore creates a new GORM-backed store. The schema is created on the
// first call that touches the database, so the store may be constructed
// before the database is reachable.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ensureSchema creates the records table if it is missing. A failed attempt
// is retried on the next call.
func (s *gormStore) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Record{}); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	s.ready = true
	logrus.Info("Local store schema ready")
	return nil
}

// classify tells a rejected write apart from an unreachable store.
func (s *gormStore) classify(ctx context.Context, op string, err error) error {
	if pingErr := s.Ping(ctx); pingErr != nil {
		return errs.Connection(op, err)
	}
	return errs.Write(op, err)
}

// Submit persists a new record with Synced=false and a store-assigned timestamp.
func (s *gormStore) Submit(ctx context.Context, sub model.Submission) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, s.classify(ctx, "submit", err))
	}

	record := model.Record{
		Type:      sub.Type,
		Name:      sub.Name,
		Value:     sub.Value,
		Unit:      sub.Unit,
		Comment:   sub.Comment,
		Timestamp: s.now().Truncate(time.Microsecond),
		Synced:    false,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageUnavailable, s.classify(ctx, "submit", err))
	}

	logrus.WithFields(logrus.Fields{
		"id":    record.ID,
		"type":  record.Type,
		"value": record.Value,
	}).Debug("Record stored locally")
	return record.ID, nil
}

// Pending returns unsynchronized records in insertion order. Ids are assigned
// in insertion order, so they also order the records by timestamp while the
// clock is monotonic, and stay correct when it is stepped backwards.
func (s *gormStore) Pending(ctx context.Context, limit int) ([]model.Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.classify(ctx, "pending", err)
	}

	var records []model.Record
	q := s.db.WithContext(ctx).Where("synced = ?", false).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, s.classify(ctx, "pending", err)
	}
	return records, nil
}

// Recent returns the newest records regardless of sync state.
func (s *gormStore) Recent(ctx context.Context, limit int) ([]model.Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, s.classify(ctx, "recent", err)
	}

	var records []model.Record
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, s.classify(ctx, "recent", err)
	}
	return records, nil
}

// MarkSynced flips the sync flag of id from false to true.
func (s *gormStore) MarkSynced(ctx context.Context, id int64) error {
	if err := s.ensureSchema(ctx); err != nil {
		return s.classify(ctx, "mark synced", err)
	}

	err := s.db.WithContext(ctx).
		Model(&model.Record{}).
		Where("id = ? AND synced = ?", id, false).
		Update("synced", true).Error
	if err != nil {
		return s.classify(ctx, "mark synced", fmt.Errorf("record %d: %w", id, err))
	}
	return nil
}

// PendingCount returns how many records still wait for synchronization.
func (s *gormStore) PendingCount(ctx context.Context) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, s.classify(ctx, "pending count", err)
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Record{}).Where("synced = ?", false).Count(&n).Error; err != nil {
		return 0, s.classify(ctx, "pending count", err)
	}
	return n, nil
}

// Ping checks connectivity of the underlying database.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
