package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/halcyonlabs/halcyon-device/internal/faults"
	"github.com/halcyonlabs/halcyon-device/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "checkin.service.new"
	opGetByDate  = "checkin.get_by_date"
	opUpsert     = "checkin.upsert"
	opList       = "checkin.list"
	opBulkInsert = "checkin.bulk_insert"
	opClearAll   = "checkin.clear_all"
)

// ServiceConfig describes the dependencies of the check-in service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service owns daily check-in rows.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the check-in service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, faults.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, faults.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
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

// GetByDate returns the check-in for the supplied date. Absence is reported
// via the boolean, not as an error.
func (s *Service) GetByDate(ctx context.Context, date string) (Checkin, bool, error) {
	var row Checkin
	err := s.db.WithContext(ctx).Where("date = ?", date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Checkin{}, false, nil
	}
	if err != nil {
		s.logError(opGetByDate, "query_failed", err, zap.String("date", date))
		return Checkin{}, false, faults.New(opGetByDate, "query_failed", err)
	}
	return row, true, nil
}

// Upsert inserts a check-in for the date or updates only the supplied fields
// of the existing one.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Checkin, error) {
	if err := input.validate(); err != nil {
		return Checkin{}, faults.New(opUpsert, "invalid_input", err)
	}

	now := s.clock().UTC().Unix()

	var existing Checkin
	err := s.db.WithContext(ctx).Where("date = ?", input.Date).Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opUpsert, "select_failed", err, zap.String("date", input.Date))
		return Checkin{}, faults.New(opUpsert, "select_failed", err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		rowID, idErr := s.idProvider.NewID()
		if idErr != nil {
			s.logError(opUpsert, "id_generation_failed", idErr)
			return Checkin{}, faults.New(opUpsert, "id_generation_failed", idErr)
		}
		row := Checkin{
			ID:               rowID,
			Date:             input.Date,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		applyInput(&row, input)
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			s.logError(opUpsert, "insert_failed", err, zap.String("date", input.Date))
			return Checkin{}, faults.New(opUpsert, "insert_failed", err)
		}
		return row, nil
	}

	applyInput(&existing, input)
	existing.UpdatedAtSeconds = now
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		s.logError(opUpsert, "update_failed", err, zap.String("date", input.Date))
		return Checkin{}, faults.New(opUpsert, "update_failed", err)
	}
	return existing, nil
}

func applyInput(row *Checkin, input UpsertInput) {
	if input.MoodScore != nil {
		row.MoodScore = input.MoodScore
	}
	if input.EnergyLevel != nil {
		row.EnergyLevel = input.EnergyLevel
	}
	if input.SleepHours != nil {
		row.SleepHours = input.SleepHours
	}
	if input.SleepQuality != nil {
		row.SleepQuality = input.SleepQuality
	}
	if input.Note != nil {
		row.Note = *input.Note
	}
}

// List returns check-ins matching the query ordered by date descending.
func (s *Service) List(ctx context.Context, query ListQuery) ([]Checkin, error) {
	tx := s.db.WithContext(ctx).Order("date DESC")
	if query.From != "" {
		tx = tx.Where("date >= ?", query.From)
	}
	if query.To != "" {
		tx = tx.Where("date <= ?", query.To)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}

	var rows []Checkin
	if err := tx.Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, faults.New(opList, "query_failed", err)
	}
	return rows, nil
}

// ListAll returns every check-in ordered by date descending.
func (s *Service) ListAll(ctx context.Context) ([]Checkin, error) {
	return s.List(ctx, ListQuery{})
}

// BulkInsert writes the supplied rows with insert-or-replace semantics.
// OR REPLACE covers a conflict on either the id or the unique date, so a
// restore over a store that re-created a check-in for the same date still
// lands the snapshot row. Restore is the only caller.
func (s *Service) BulkInsert(ctx context.Context, rows []Checkin) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.Insert{Modifier: "OR REPLACE"}).
		Create(&rows).Error
	if err != nil {
		s.logError(opBulkInsert, "insert_failed", err, zap.Int("count", len(rows)))
		return faults.New(opBulkInsert, "insert_failed", err)
	}
	return nil
}

// ClearAll unconditionally deletes every check-in.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM daily_checkins").Error; err != nil {
		s.logError(opClearAll, "delete_failed", err)
		return faults.New(opClearAll, "delete_failed", err)
	}
	return nil
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
	s.logger.Error("checkin service error", attrs...)
}
