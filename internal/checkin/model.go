package checkin

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidDate indicates a check-in date outside YYYY-MM-DD form.
	ErrInvalidDate = errors.New("checkin: invalid date")
	// ErrOutOfRange indicates a mood or sleep value outside its documented bounds.
	ErrOutOfRange = errors.New("checkin: value out of range")
)

// Checkin captures one day's mood and sleep self-report. One row per date.
type Checkin struct {
	ID               string   `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Date             string   `gorm:"column:date;size:10;not null;uniqueIndex:idx_daily_checkins_date" json:"date"`
	MoodScore        *int     `gorm:"column:mood_score" json:"mood_score"`
	EnergyLevel      *int     `gorm:"column:energy_level" json:"energy_level"`
	SleepHours       *float64 `gorm:"column:sleep_hours" json:"sleep_hours"`
	SleepQuality     *int     `gorm:"column:sleep_quality" json:"sleep_quality"`
	Note             string   `gorm:"column:note;type:text" json:"note"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Checkin) TableName() string {
	return "daily_checkins"
}

// UpsertInput carries the fields supplied for an insert-or-update. Nil fields
// are left untouched on an existing row.
type UpsertInput struct {
	Date         string
	MoodScore    *int
	EnergyLevel  *int
	SleepHours   *float64
	SleepQuality *int
	Note         *string
}

func (in UpsertInput) validate() error {
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
	}
	if in.MoodScore != nil && (*in.MoodScore < 1 || *in.MoodScore > 5) {
		return fmt.Errorf("%w: mood_score %d", ErrOutOfRange, *in.MoodScore)
	}
	if in.EnergyLevel != nil && (*in.EnergyLevel < 1 || *in.EnergyLevel > 5) {
		return fmt.Errorf("%w: energy_level %d", ErrOutOfRange, *in.EnergyLevel)
	}
	if in.SleepQuality != nil && (*in.SleepQuality < 1 || *in.SleepQuality > 5) {
		return fmt.Errorf("%w: sleep_quality %d", ErrOutOfRange, *in.SleepQuality)
	}
	if in.SleepHours != nil && (*in.SleepHours < 0 || *in.SleepHours > 24) {
		return fmt.Errorf("%w: sleep_hours %g", ErrOutOfRange, *in.SleepHours)
	}
	return nil
}

// ListQuery bounds a descending listing of check-ins.
type ListQuery struct {
	From  string
	To    string
	Limit int
}
