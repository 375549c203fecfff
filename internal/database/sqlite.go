package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/redlinehq/redline/backend/internal/conflict"
	"github.com/redlinehq/redline/backend/internal/history"
)

// OpenDocument establishes a SQLite connection to one document's history
// store and performs schema migrations.
func OpenDocument(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&history.Patch{},
		&history.Snapshot{},
		&history.PatchReview{},
		&history.Comment{},
		&conflict.Record{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("document store initialized", zap.String("path", path))
	}

	return db, nil
}
