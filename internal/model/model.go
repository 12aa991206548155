package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for TimeRecord.Date.
const DateLayout = "2006-01-02"

// TimeRecord is one computed Shabbat (or erev-holiday) entry as produced by a
// time calculator. Records are immutable once created.
type TimeRecord struct {
	// Date is the calendar date of candle lighting, "YYYY-MM-DD".
	Date string `json:"date"`
	// CandleLighting is the local time of day, e.g. "18:42".
	CandleLighting string `json:"candle_lighting"`

	Havdalah string `json:"havdalah,omitempty"`
	Parasha  string `json:"parasha,omitempty"`
	City     string `json:"city,omitempty"`
}

// Day parses Date as a calendar date at midnight in loc.
func (r TimeRecord) Day(loc *time.Location) (time.Time, error) {
	return ParseDate(r.Date, loc)
}

// CandleLightingAt combines Date and CandleLighting into one instant in loc.
func (r TimeRecord) CandleLightingAt(loc *time.Location) (time.Time, error) {
	return Combine(r.Date, r.CandleLighting, loc)
}

// Validate reports whether both the date and candle-lighting time parse.
func (r TimeRecord) Validate() error {
	if _, err := ParseDate(r.Date, time.UTC); err != nil {
		return err
	}
	if _, _, _, err := ParseClock(r.CandleLighting); err != nil {
		return err
	}
	return nil
}

// Location is the resolved position of the user.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
}

// AlarmConfig is the persisted pre-candle-lighting alarm preference.
type AlarmConfig struct {
	OffsetMinutes int    `json:"time"`
	SoundID       string `json:"sound"`
}

// Envelope pairs a fetched record sequence with the instant it was fetched.
type Envelope struct {
	Data      []TimeRecord `json:"data"`
	Timestamp EpochMillis  `json:"timestamp"`
}

// FetchedAt returns the envelope timestamp as a time.Time.
func (e Envelope) FetchedAt() time.Time {
	return e.Timestamp.Time()
}

// EpochMillis is an instant serialized as milliseconds since the Unix epoch.
type EpochMillis int64

// NewEpochMillis converts t to EpochMillis.
func NewEpochMillis(t time.Time) EpochMillis {
	return EpochMillis(t.UnixMilli())
}

func (m EpochMillis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// UnmarshalJSON accepts integral and fractional numbers; JavaScript-written
// blobs sometimes carry the latter.
func (m *EpochMillis) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*m = EpochMillis(int64(f))
	return nil
}

// ParseDate parses "YYYY-MM-DD" (or an RFC3339 value, whose date part is
// used) into midnight of that calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if loc == nil {
		loc = time.Local
	}
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04pm",
	"3:04 pm",
	"3:04PM",
	"3:04 PM",
}

// ParseClock parses a time-of-day string such as "18:05", "18:05:30" or
// "6:05pm" into hour, minute and second.
func ParseClock(s string) (hour, minute, second int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, 0, errors.New("empty time of day")
	}
	for _, layout := range clockLayouts {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("unrecognized time of day %q", s)
}

// Combine joins a calendar date and a time-of-day string into one instant in loc.
func Combine(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	h, m, s, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location()), nil
}
