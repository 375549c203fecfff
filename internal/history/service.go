package history

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingSource     = errors.New("source service is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "history.service.new"
	opAppendPatch     = "history.append_patch"
	opListPatches     = "history.list_patches"
	opGetPatch        = "history.get_patch"
	opPatchSummaries  = "history.patch_summaries"
	opSaveSnapshot    = "history.save_snapshot"
	opNearestSnapshot = "history.nearest_snapshot"
	opRestoreTo       = "history.restore_to"
	opRecordReview    = "history.record_review"
	opReviewsFor      = "history.reviews_for"
	opNeedsReview     = "history.needs_review"
	opParentStatus    = "history.parent_status"
	opImportFrom      = "history.import_from"
	opAddComment      = "history.add_comment"
	opListComments    = "history.list_comments"
	opReplyToComment  = "history.reply_to_comment"
	opUpdateComment   = "history.update_comment_status"
	opDeleteComment   = "history.delete_comment"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service exposes the patch, snapshot, review, and comment operations for one document.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Database exposes the underlying handle so sibling stores can share the document file.
func (s *Service) Database() *gorm.DB {
	return s.db
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("history service error", attrs...)
}
