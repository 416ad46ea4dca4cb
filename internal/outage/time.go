package outage

import (
	"fmt"
	"time"
)

// TimeLayout is the canonical text form of every timestamp the store keys
// on. Fixed width and UTC, so string comparison orders chronologically.
const TimeLayout = "2006-01-02T15:04:05Z"

// Stamp formats t in TimeLayout at one-second precision.
func Stamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// HourKey floors t to the top of its hour and formats it.
func HourKey(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format(TimeLayout)
}

// ParseStamp parses a value written by Stamp or HourKey.
func ParseStamp(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stamp %q: %w", s, err)
	}
	return t, nil
}
