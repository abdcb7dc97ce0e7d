package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidDate indicates a date outside YYYY-MM-DD form.
	ErrInvalidDate = errors.New("analysis: invalid date")
	// ErrScoreOutOfRange indicates a score outside its documented bounds.
	ErrScoreOutOfRange = errors.New("analysis: score out of range")
)

// EmotionAnalysis stores one emotion inference for a date. Multiple rows per
// date are allowed; they form a history.
type EmotionAnalysis struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Date             string  `gorm:"column:date;size:10;not null;index:idx_emotion_analyses_date" json:"date"`
	Valence          float64 `gorm:"column:valence;not null" json:"valence"`
	Arousal          float64 `gorm:"column:arousal;not null" json:"arousal"`
	DominantEmotion  string  `gorm:"column:dominant_emotion;size:64" json:"dominant_emotion"`
	Confidence       float64 `gorm:"column:confidence;not null" json:"confidence"`
	Notes            string  `gorm:"column:notes;type:text" json:"notes"`
	ImagePath        string  `gorm:"column:image_path;size:512" json:"image_path"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (EmotionAnalysis) TableName() string {
	return "emotion_analyses"
}

func (a EmotionAnalysis) validate() error {
	if _, err := time.Parse(dateLayout, a.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, a.Date)
	}
	if a.Valence < -1 || a.Valence > 1 {
		return fmt.Errorf("%w: valence %g not in [-1,1]", ErrScoreOutOfRange, a.Valence)
	}
	if a.Arousal < 0 || a.Arousal > 1 {
		return fmt.Errorf("%w: arousal %g not in [0,1]", ErrScoreOutOfRange, a.Arousal)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: confidence %g not in [0,1]", ErrScoreOutOfRange, a.Confidence)
	}
	return nil
}

// SkinAnalysis stores one skin inference for a date, scored 0-100 per axis.
type SkinAnalysis struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Date             string  `gorm:"column:date;size:10;not null;index:idx_skin_analyses_date" json:"date"`
	Hydration        float64 `gorm:"column:hydration;not null" json:"hydration"`
	Oiliness         float64 `gorm:"column:oiliness;not null" json:"oiliness"`
	Texture          float64 `gorm:"column:texture;not null" json:"texture"`
	Pigmentation     float64 `gorm:"column:pigmentation;not null" json:"pigmentation"`
	OverallScore     float64 `gorm:"column:overall_score;not null" json:"overall_score"`
	Notes            string  `gorm:"column:notes;type:text" json:"notes"`
	ImagePath        string  `gorm:"column:image_path;size:512" json:"image_path"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (SkinAnalysis) TableName() string {
	return "skin_analyses"
}

func (a SkinAnalysis) validate() error {
	if _, err := time.Parse(dateLayout, a.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, a.Date)
	}
	axes := map[string]float64{
		"hydration":     a.Hydration,
		"oiliness":      a.Oiliness,
		"texture":       a.Texture,
		"pigmentation":  a.Pigmentation,
		"overall_score": a.OverallScore,
	}
	for name, value := range axes {
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: %s %g not in [0,100]", ErrScoreOutOfRange, name, value)
		}
	}
	return nil
}

// MenstrualNote stores one row per date with a free-text note and a serialized
// symptom list.
type MenstrualNote struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Date             string `gorm:"column:date;size:10;not null;uniqueIndex:idx_menstrual_notes_date" json:"date"`
	Note             string `gorm:"column:note;type:text" json:"note"`
	SymptomsJSON     string `gorm:"column:symptoms_json;type:text" json:"symptoms_json"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (MenstrualNote) TableName() string {
	return "menstrual_notes"
}

// Symptoms deserializes the stored symptom list.
func (n MenstrualNote) Symptoms() ([]string, error) {
	if n.SymptomsJSON == "" {
		return nil, nil
	}
	var symptoms []string
	if err := json.Unmarshal([]byte(n.SymptomsJSON), &symptoms); err != nil {
		return nil, err
	}
	return symptoms, nil
}

// MenstrualUpsertInput carries the fields supplied for an insert-or-update.
// Nil fields are left untouched on an existing row; nothing else is merged.
type MenstrualUpsertInput struct {
	Date     string
	Note     *string
	Symptoms []string
}

// EmotionInput is a freshly generated emotion analysis awaiting persistence.
type EmotionInput struct {
	Date            string
	Valence         float64
	Arousal         float64
	DominantEmotion string
	Confidence      float64
	Notes           string
	ImagePath       string
}

// SkinInput is a freshly generated skin analysis awaiting persistence.
type SkinInput struct {
	Date         string
	Hydration    float64
	Oiliness     float64
	Texture      float64
	Pigmentation float64
	OverallScore float64
	Notes        string
	ImagePath    string
}

// RecordOutcome reports an analysis record together with whether storing it
// succeeded. The analysis itself is the user-facing result; a storage failure
// must not erase it, so the failure travels alongside instead of replacing it.
type RecordOutcome[T any] struct {
	Record     T
	Persisted  bool
	PersistErr error
}
