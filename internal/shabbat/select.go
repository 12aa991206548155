// Package shabbat picks which computed record is the upcoming Shabbat.
package shabbat

import (
	"time"

	"shabbatd/internal/model"
)

// SelectNext returns the record with the earliest calendar date that is on or
// after now's calendar date in loc. Input order does not matter; among records
// sharing that date the first one wins. Records whose date does not parse are
// ignored.
//
// Only the calendar day is compared, so a record dated today stays selected
// for the whole of that day, including after candle lighting. This differs
// from comparing the record's midnight against the current instant, which
// would drop today's record as soon as the day starts and leave the alarm
// for that evening unreachable once selection is recomputed.
func SelectNext(records []model.TimeRecord, now time.Time, loc *time.Location) (model.TimeRecord, bool) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var (
		best    model.TimeRecord
		bestDay time.Time
		found   bool
	)
	for _, rec := range records {
		day, err := rec.Day(loc)
		if err != nil {
			continue
		}
		if day.Before(today) {
			continue
		}
		if !found || day.Before(bestDay) {
			best, bestDay, found = rec, day, true
		}
	}
	return best, found
}
