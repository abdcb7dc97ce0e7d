package analysis

import (
	"context"
	"encoding/json"
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
	opServiceNew      = "analysis.service.new"
	opRecordEmotion   = "analysis.record_emotion"
	opRecordSkin      = "analysis.record_skin"
	opListEmotion     = "analysis.list_emotion"
	opListSkin        = "analysis.list_skin"
	opMenstrualGet    = "analysis.menstrual_get"
	opMenstrualUpsert = "analysis.menstrual_upsert"
	opMenstrualList   = "analysis.menstrual_list"
	opBulkInsert      = "analysis.bulk_insert"
	opClearAll        = "analysis.clear_all"
)

// ServiceConfig describes the dependencies of the analysis service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service owns emotion analyses, skin analyses, and menstrual notes.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewService constructs the analysis service.
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

// RecordEmotion validates and stores a freshly generated emotion analysis.
// Validation failures are hard errors. A storage failure does not fail the
// call: the analysis already exists and the caller still owes it to the user,
// so the outcome carries Persisted=false and the storage error instead.
func (s *Service) RecordEmotion(ctx context.Context, input EmotionInput) (RecordOutcome[EmotionAnalysis], error) {
	rowID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRecordEmotion, "id_generation_failed", err)
		return RecordOutcome[EmotionAnalysis]{}, faults.New(opRecordEmotion, "id_generation_failed", err)
	}

	row := EmotionAnalysis{
		ID:               rowID,
		Date:             input.Date,
		Valence:          input.Valence,
		Arousal:          input.Arousal,
		DominantEmotion:  input.DominantEmotion,
		Confidence:       input.Confidence,
		Notes:            input.Notes,
		ImagePath:        input.ImagePath,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := row.validate(); err != nil {
		return RecordOutcome[EmotionAnalysis]{}, faults.New(opRecordEmotion, "invalid_input", err)
	}

	outcome := RecordOutcome[EmotionAnalysis]{Record: row, Persisted: true}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opRecordEmotion, "insert_failed", err, zap.String("date", input.Date))
		outcome.Persisted = false
		outcome.PersistErr = faults.New(opRecordEmotion, "insert_failed", err)
	}
	return outcome, nil
}

// RecordSkin validates and stores a freshly generated skin analysis with the
// same outcome semantics as RecordEmotion.
func (s *Service) RecordSkin(ctx context.Context, input SkinInput) (RecordOutcome[SkinAnalysis], error) {
	rowID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRecordSkin, "id_generation_failed", err)
		return RecordOutcome[SkinAnalysis]{}, faults.New(opRecordSkin, "id_generation_failed", err)
	}

	row := SkinAnalysis{
		ID:               rowID,
		Date:             input.Date,
		Hydration:        input.Hydration,
		Oiliness:         input.Oiliness,
		Texture:          input.Texture,
		Pigmentation:     input.Pigmentation,
		OverallScore:     input.OverallScore,
		Notes:            input.Notes,
		ImagePath:        input.ImagePath,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := row.validate(); err != nil {
		return RecordOutcome[SkinAnalysis]{}, faults.New(opRecordSkin, "invalid_input", err)
	}

	outcome := RecordOutcome[SkinAnalysis]{Record: row, Persisted: true}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opRecordSkin, "insert_failed", err, zap.String("date", input.Date))
		outcome.Persisted = false
		outcome.PersistErr = faults.New(opRecordSkin, "insert_failed", err)
	}
	return outcome, nil
}

// ListEmotion returns emotion analyses, optionally filtered to one date,
// newest first.
func (s *Service) ListEmotion(ctx context.Context, date string) ([]EmotionAnalysis, error) {
	tx := s.db.WithContext(ctx).Order("created_at_s DESC")
	if date != "" {
		tx = tx.Where("date = ?", date)
	}
	var rows []EmotionAnalysis
	if err := tx.Find(&rows).Error; err != nil {
		s.logError(opListEmotion, "query_failed", err)
		return nil, faults.New(opListEmotion, "query_failed", err)
	}
	return rows, nil
}

// ListSkin returns skin analyses, optionally filtered to one date, newest first.
func (s *Service) ListSkin(ctx context.Context, date string) ([]SkinAnalysis, error) {
	tx := s.db.WithContext(ctx).Order("created_at_s DESC")
	if date != "" {
		tx = tx.Where("date = ?", date)
	}
	var rows []SkinAnalysis
	if err := tx.Find(&rows).Error; err != nil {
		s.logError(opListSkin, "query_failed", err)
		return nil, faults.New(opListSkin, "query_failed", err)
	}
	return rows, nil
}

// GetMenstrualNote returns the note for the supplied date. Absence is reported
// via the boolean, not as an error.
func (s *Service) GetMenstrualNote(ctx context.Context, date string) (MenstrualNote, bool, error) {
	var row MenstrualNote
	err := s.db.WithContext(ctx).Where("date = ?", date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MenstrualNote{}, false, nil
	}
	if err != nil {
		s.logError(opMenstrualGet, "query_failed", err, zap.String("date", date))
		return MenstrualNote{}, false, faults.New(opMenstrualGet, "query_failed", err)
	}
	return row, true, nil
}

// UpsertMenstrualNote inserts a note for the date or updates only the supplied
// fields of the existing one.
func (s *Service) UpsertMenstrualNote(ctx context.Context, input MenstrualUpsertInput) (MenstrualNote, error) {
	if _, err := time.Parse(dateLayout, input.Date); err != nil {
		return MenstrualNote{}, faults.New(opMenstrualUpsert, "invalid_date", ErrInvalidDate)
	}

	now := s.clock().UTC().Unix()

	var existing MenstrualNote
	err := s.db.WithContext(ctx).Where("date = ?", input.Date).Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opMenstrualUpsert, "select_failed", err, zap.String("date", input.Date))
		return MenstrualNote{}, faults.New(opMenstrualUpsert, "select_failed", err)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		rowID, idErr := s.idProvider.NewID()
		if idErr != nil {
			s.logError(opMenstrualUpsert, "id_generation_failed", idErr)
			return MenstrualNote{}, faults.New(opMenstrualUpsert, "id_generation_failed", idErr)
		}
		row := MenstrualNote{
			ID:               rowID,
			Date:             input.Date,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		if err := applyMenstrualInput(&row, input); err != nil {
			return MenstrualNote{}, faults.New(opMenstrualUpsert, "encode_failed", err)
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			s.logError(opMenstrualUpsert, "insert_failed", err, zap.String("date", input.Date))
			return MenstrualNote{}, faults.New(opMenstrualUpsert, "insert_failed", err)
		}
		return row, nil
	}

	if err := applyMenstrualInput(&existing, input); err != nil {
		return MenstrualNote{}, faults.New(opMenstrualUpsert, "encode_failed", err)
	}
	existing.UpdatedAtSeconds = now
	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		s.logError(opMenstrualUpsert, "update_failed", err, zap.String("date", input.Date))
		return MenstrualNote{}, faults.New(opMenstrualUpsert, "update_failed", err)
	}
	return existing, nil
}

func applyMenstrualInput(row *MenstrualNote, input MenstrualUpsertInput) error {
	if input.Note != nil {
		row.Note = *input.Note
	}
	if input.Symptoms != nil {
		encoded, err := json.Marshal(input.Symptoms)
		if err != nil {
			return err
		}
		row.SymptomsJSON = string(encoded)
	}
	return nil
}

// ListAllEmotion returns every emotion analysis, newest first.
func (s *Service) ListAllEmotion(ctx context.Context) ([]EmotionAnalysis, error) {
	return s.ListEmotion(ctx, "")
}

// ListAllSkin returns every skin analysis, newest first.
func (s *Service) ListAllSkin(ctx context.Context) ([]SkinAnalysis, error) {
	return s.ListSkin(ctx, "")
}

// ListAllMenstrualNotes returns every menstrual note ordered by date descending.
func (s *Service) ListAllMenstrualNotes(ctx context.Context) ([]MenstrualNote, error) {
	var rows []MenstrualNote
	if err := s.db.WithContext(ctx).Order("date DESC").Find(&rows).Error; err != nil {
		s.logError(opMenstrualList, "query_failed", err)
		return nil, faults.New(opMenstrualList, "query_failed", err)
	}
	return rows, nil
}

// BulkInsertEmotion writes emotion rows with insert-or-replace semantics.
func (s *Service) BulkInsertEmotion(ctx context.Context, rows []EmotionAnalysis) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		s.logError(opBulkInsert, "emotion_insert_failed", err, zap.Int("count", len(rows)))
		return faults.New(opBulkInsert, "emotion_insert_failed", err)
	}
	return nil
}

// BulkInsertSkin writes skin rows with insert-or-replace semantics.
func (s *Service) BulkInsertSkin(ctx context.Context, rows []SkinAnalysis) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		s.logError(opBulkInsert, "skin_insert_failed", err, zap.Int("count", len(rows)))
		return faults.New(opBulkInsert, "skin_insert_failed", err)
	}
	return nil
}

// BulkInsertMenstrualNotes writes note rows with insert-or-replace semantics.
// menstrual_notes carries a unique date index on top of the id, so OR REPLACE
// is needed for a restore to displace a different-id row for the same date.
func (s *Service) BulkInsertMenstrualNotes(ctx context.Context, rows []MenstrualNote) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.Insert{Modifier: "OR REPLACE"}).
		Create(&rows).Error
	if err != nil {
		s.logError(opBulkInsert, "menstrual_insert_failed", err, zap.Int("count", len(rows)))
		return faults.New(opBulkInsert, "menstrual_insert_failed", err)
	}
	return nil
}

// ClearAll unconditionally deletes every analysis row of all three kinds.
func (s *Service) ClearAll(ctx context.Context) error {
	for _, table := range []string{"emotion_analyses", "skin_analyses", "menstrual_notes"} {
		if err := s.db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			s.logError(opClearAll, "delete_failed", err, zap.String("table", table))
			return faults.New(opClearAll, "delete_failed", err)
		}
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
	s.logger.Error("analysis service error", attrs...)
}
