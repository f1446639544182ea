package sqlitedb

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// TimeLayout is the storage format for timestamps. Fixed width so stored
// values sort lexically in SQL comparisons.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func NullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(TimeLayout)
}

// NullableTimeValue stores a zero time as NULL.
func NullableTimeValue(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(TimeLayout)
}

func FormatTime(value time.Time) string {
	return value.UTC().Format(TimeLayout)
}

func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(TimeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// TimePtr converts a nullable column to *time.Time, dropping unparsable values.
func TimePtr(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

// TimeValue converts a nullable column to time.Time, zero when absent.
func TimeValue(value sql.NullString) time.Time {
	if t := TimePtr(value); t != nil {
		return *t
	}
	return time.Time{}
}

func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
