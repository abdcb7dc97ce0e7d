package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
	"github.com/halcyonlabs/halcyon-device/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection, enables WAL, and performs schema
// migrations. Safe to call against an already-initialized database file: every
// step is a no-op when its work is already done. A storage-level open failure
// is fatal for the caller; there is no fallback store.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
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
	// The service is the only writer. One connection sidesteps SQLITE_BUSY
	// while WAL still lets readers proceed during a write.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&journal.Entry{},
		&chat.Session{},
		&chat.Message{},
		&checkin.Checkin{},
		&analysis.EmotionAnalysis{},
		&analysis.SkinAnalysis{},
		&analysis.MenstrualNote{},
		&settings.Setting{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
