package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// schemaVersion marks the on-disk layout generation. Bump alongside a ledger
// entry whenever a table change is not expressible as a pure AutoMigrate add.
const schemaVersion = 1

const (
	migrationMarkSchemaVersion    = "2026-04-02_mark_schema_version"
	migrationTrimEntityDateFields = "2026-06-15_trim_entity_date_fields"
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
		{name: migrationMarkSchemaVersion, apply: markSchemaVersion},
		{name: migrationTrimEntityDateFields, apply: trimEntityDateFields},
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

func markSchemaVersion(db *gorm.DB) error {
	return db.Exec(
		"INSERT INTO device_settings (key, value_json, updated_at_s) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO NOTHING",
		"schema_version", schemaVersion, time.Now().UTC().Unix(),
	).Error
}

// Early builds accepted dates with surrounding whitespace from the mobile
// client; unique-by-date lookups then missed them.
func trimEntityDateFields(db *gorm.DB) error {
	statements := []string{
		"UPDATE journal_entries SET entry_date = trim(entry_date) WHERE entry_date <> trim(entry_date);",
		"UPDATE daily_checkins SET date = trim(date) WHERE date <> trim(date);",
		"UPDATE menstrual_notes SET date = trim(date) WHERE date <> trim(date);",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}
