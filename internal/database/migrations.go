package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/redlinehq/redline/backend/internal/history"
)

const (
	migrationBackfillPatchUUIDs     = "2026-07-18_backfill_patch_uuids"
	migrationNormalizeCommentStatus = "2026-07-18_normalize_comment_status"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillPatchUUIDs, apply: backfillPatchUUIDs},
		{name: migrationNormalizeCommentStatus, apply: normalizeCommentStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillPatchUUIDs assigns identities to legacy patch rows that predate the
// uuid column, so reviews and transplants can address every patch.
func backfillPatchUUIDs(db *gorm.DB) error {
	var legacy []history.Patch
	if err := db.Where("uuid IS NULL OR uuid = ''").Find(&legacy).Error; err != nil {
		return err
	}
	for _, patch := range legacy {
		value, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		generated := value.String()
		if err := db.Model(&history.Patch{}).
			Where("id = ?", patch.ID).
			Update("uuid", generated).Error; err != nil {
			return err
		}
	}
	return nil
}

// normalizeCommentStatus repairs rows written before the status column gained
// a default.
func normalizeCommentStatus(db *gorm.DB) error {
	return db.Model(&history.Comment{}).
		Where("status IS NULL OR status = ''").
		Update("status", history.CommentStatusUnresolved).Error
}
