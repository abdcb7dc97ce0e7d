// Package settings is the small key-value config store the cloud backup
// adapter persists its destination into. Values are JSON blobs keyed by name,
// living in the same SQLite database as the entity tables.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidKey indicates an empty settings key.
var ErrInvalidKey = errors.New("settings: key required")

// Setting is one persisted key-value pair.
type Setting struct {
	Key              string `gorm:"column:key;primaryKey;size:190;not null"`
	ValueJSON        string `gorm:"column:value_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Setting) TableName() string {
	return "device_settings"
}

// StoreConfig describes the dependencies of the settings store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store reads and writes JSON-valued settings.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore constructs the settings store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("settings: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// Get unmarshals the stored value for key into out. The boolean reports
// whether the key existed.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrInvalidKey
	}
	var row Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(row.ValueJSON), out); err != nil {
		return false, fmt.Errorf("settings: decode %q: %w", key, err)
	}
	return true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %q: %w", key, err)
	}
	row := Setting{
		Key:              key,
		ValueJSON:        string(encoded),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, UpdateAll: true}).
		Create(&row).Error
}

// Delete removes the key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&Setting{}).Error
}
