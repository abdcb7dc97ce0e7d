package journal

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
	opServiceNew = "journal.service.new"
	opGetByDate  = "journal.get_by_date"
	opUpsert     = "journal.upsert"
	opList       = "journal.list"
	opBulkInsert = "journal.bulk_insert"
	opClearAll   = "journal.clear_all"
)

// ServiceConfig describes the dependencies of the journal service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service owns journal entry rows.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the journal service.
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

// GetByDate returns the entry for the supplied date. Absence is reported via
// the boolean, not as an error.
func (s *Service) GetByDate(ctx context.Context, entryDate EntryDate) (Entry, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).
		Where("entry_date = ?", entryDate.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		s.logError(opGetByDate, "query_failed", err, zap.String("entry_date", entryDate.String()))
		return Entry{}, false, faults.New(opGetByDate, "query_failed", err)
	}
	return entry, true, nil
}

// Upsert inserts a new entry for the date or updates only the supplied fields
// of the existing one. Fields left nil on the input retain their prior values.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Entry, error) {
	now := s.clock().UTC().Unix()

	var existing Entry
	err := s.db.WithContext(ctx).
		Where("entry_date = ?", input.EntryDate.String()).
		Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opUpsert, "select_failed", err, zap.String("entry_date", input.EntryDate.String()))
		return Entry{}, faults.New(opUpsert, "select_failed", err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		entryID, idErr := s.idProvider.NewID()
		if idErr != nil {
			s.logError(opUpsert, "id_generation_failed", idErr)
			return Entry{}, faults.New(opUpsert, "id_generation_failed", idErr)
		}
		entry := Entry{
			ID:               entryID,
			EntryDate:        input.EntryDate.String(),
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		applyInput(&entry, input)
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			s.logError(opUpsert, "insert_failed", err, zap.String("entry_date", input.EntryDate.String()))
			return Entry{}, faults.New(opUpsert, "insert_failed", err)
		}
		return entry, nil
	}

	applyInput(&existing, input)
	existing.UpdatedAtSeconds = now
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		s.logError(opUpsert, "update_failed", err, zap.String("entry_date", input.EntryDate.String()))
		return Entry{}, faults.New(opUpsert, "update_failed", err)
	}
	return existing, nil
}

func applyInput(entry *Entry, input UpsertInput) {
	if input.Content != nil {
		entry.Content = *input.Content
	}
	if input.AIPrompt != nil {
		entry.AIPrompt = *input.AIPrompt
	}
	if input.AIScore != nil {
		entry.AIScore = input.AIScore
	}
	if input.AIAnalysis != nil {
		entry.AIAnalysis = *input.AIAnalysis
	}
}

// List returns entries matching the query ordered by entry date descending.
func (s *Service) List(ctx context.Context, query ListQuery) ([]Entry, error) {
	tx := s.db.WithContext(ctx).Order("entry_date DESC")
	if query.From != "" {
		tx = tx.Where("entry_date >= ?", query.From)
	}
	if query.To != "" {
		tx = tx.Where("entry_date <= ?", query.To)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}

	var entries []Entry
	if err := tx.Find(&entries).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, faults.New(opList, "query_failed", err)
	}
	return entries, nil
}

// ListAll returns every entry ordered by entry date descending.
func (s *Service) ListAll(ctx context.Context) ([]Entry, error) {
	return s.List(ctx, ListQuery{})
}

// BulkInsert writes the supplied rows with insert-or-replace semantics.
// OR REPLACE resolves a conflict on either unique key: the store may already
// hold a different-id row for the same date when a restore runs without a
// preceding clear, and that row must give way. Restore is the only caller.
func (s *Service) BulkInsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.Insert{Modifier: "OR REPLACE"}).
		Create(&entries).Error
	if err != nil {
		s.logError(opBulkInsert, "insert_failed", err, zap.Int("count", len(entries)))
		return faults.New(opBulkInsert, "insert_failed", err)
	}
	return nil
}

// ClearAll unconditionally deletes every journal entry.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM journal_entries").Error; err != nil {
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
	s.logger.Error("journal service error", attrs...)
}
