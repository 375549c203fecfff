package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrConflictNotFound indicates a resolve call that matched no stored conflict.
	ErrConflictNotFound = errors.New("conflict: not found")
	noOpLogger          = zap.NewNop()
)

type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew        = "conflict.store.new"
	opSaveConflict    = "conflict.save"
	opListUnresolved  = "conflict.list_unresolved"
	opCountUnresolved = "conflict.count_unresolved"
	opResolve         = "conflict.resolve"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists detected conflicts and their resolution state.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Save inserts a conflict idempotently: a conflict whose id is already stored
// is silently ignored, so re-running detection over growing history never
// duplicates entries.
func (s *Store) Save(ctx context.Context, conflict Conflict) error {
	if s.db == nil {
		s.logError(opSaveConflict, "missing_database", errMissingDatabase)
		return newStoreError(opSaveConflict, "missing_database", errMissingDatabase)
	}

	record := toRecord(conflict)
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error; err != nil {
		s.logError(opSaveConflict, "insert_failed", err, zap.String("conflict_id", conflict.ID))
		return newStoreError(opSaveConflict, "insert_failed", err)
	}
	return nil
}

// SaveAll persists a batch of detected conflicts, each idempotently.
func (s *Store) SaveAll(ctx context.Context, conflicts []Conflict) error {
	for _, conflict := range conflicts {
		if err := s.Save(ctx, conflict); err != nil {
			return err
		}
	}
	return nil
}

// ListUnresolved returns conflicts awaiting resolution, newest-detected first.
func (s *Store) ListUnresolved(ctx context.Context) ([]Conflict, error) {
	if s.db == nil {
		s.logError(opListUnresolved, "missing_database", errMissingDatabase)
		return nil, newStoreError(opListUnresolved, "missing_database", errMissingDatabase)
	}

	var records []Record
	if err := s.db.WithContext(ctx).
		Where("status = ?", string(StatusUnresolved)).
		Order("detected_at DESC").
		Find(&records).Error; err != nil {
		s.logError(opListUnresolved, "query_failed", err)
		return nil, newStoreError(opListUnresolved, "query_failed", err)
	}

	conflicts := make([]Conflict, 0, len(records))
	for _, record := range records {
		conflicts = append(conflicts, fromRecord(record))
	}
	return conflicts, nil
}

// CountUnresolved returns the number of conflicts awaiting resolution.
func (s *Store) CountUnresolved(ctx context.Context) (int64, error) {
	if s.db == nil {
		s.logError(opCountUnresolved, "missing_database", errMissingDatabase)
		return 0, newStoreError(opCountUnresolved, "missing_database", errMissingDatabase)
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("status = ?", string(StatusUnresolved)).
		Count(&count).Error; err != nil {
		s.logError(opCountUnresolved, "query_failed", err)
		return 0, newStoreError(opCountUnresolved, "query_failed", err)
	}
	return count, nil
}

// Resolve moves a conflict out of the unresolved state, recording the chosen
// status, optional merged content, and the resolution time. Resolving an
// unknown id fails.
func (s *Store) Resolve(ctx context.Context, conflictID string, status Status, mergedContent *string) error {
	if s.db == nil {
		s.logError(opResolve, "missing_database", errMissingDatabase)
		return newStoreError(opResolve, "missing_database", errMissingDatabase)
	}
	validated, err := NewStatus(string(status))
	if err != nil {
		s.logError(opResolve, "invalid_status", err, zap.String("conflict_id", conflictID))
		return newStoreError(opResolve, "invalid_status", err)
	}

	resolvedAt := s.clock().UTC().UnixMilli()
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", conflictID).
		Updates(map[string]interface{}{
			"status":           string(validated),
			"resolved_content": mergedContent,
			"resolved_at":      resolvedAt,
		})
	if result.Error != nil {
		s.logError(opResolve, "update_failed", result.Error, zap.String("conflict_id", conflictID))
		return newStoreError(opResolve, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newStoreError(opResolve, "not_found", fmt.Errorf("%w: id %s", ErrConflictNotFound, conflictID))
	}
	return nil
}

func (s *Store) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("conflict store error", attrs...)
}
