package journal

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ErrInvalidEntryDate indicates that an entry date is not a calendar date in YYYY-MM-DD form.
var ErrInvalidEntryDate = errors.New("journal: invalid entry date")

// EntryDate represents a validated calendar date key.
type EntryDate string

// NewEntryDate validates raw input and returns an EntryDate.
func NewEntryDate(rawInput string) (EntryDate, error) {
	parsed, err := time.Parse(dateLayout, rawInput)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryDate, rawInput)
	}
	return EntryDate(parsed.Format(dateLayout)), nil
}

// String returns the underlying date string.
func (d EntryDate) String() string {
	return string(d)
}

// Entry models one day's journal record. At most one row exists per entry date.
type Entry struct {
	ID               string   `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	EntryDate        string   `gorm:"column:entry_date;size:10;not null;uniqueIndex:idx_journal_entry_date" json:"entry_date"`
	Content          string   `gorm:"column:content;type:text;not null" json:"content"`
	AIPrompt         string   `gorm:"column:ai_prompt;type:text" json:"ai_prompt"`
	AIScore          *float64 `gorm:"column:ai_score" json:"ai_score"`
	AIAnalysis       string   `gorm:"column:ai_analysis;type:text" json:"ai_analysis"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "journal_entries"
}

// UpsertInput carries the fields supplied for an insert-or-update. Nil pointer
// fields are left untouched on an existing row.
type UpsertInput struct {
	EntryDate  EntryDate
	Content    *string
	AIPrompt   *string
	AIScore    *float64
	AIAnalysis *string
}

// ListQuery bounds a descending listing of entries.
type ListQuery struct {
	From  string
	To    string
	Limit int
}
