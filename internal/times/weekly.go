package times

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

var weekdays = map[string]rrule.Weekday{
	"monday":    rrule.MO,
	"tuesday":   rrule.TU,
	"wednesday": rrule.WE,
	"thursday":  rrule.TH,
	"friday":    rrule.FR,
	"saturday":  rrule.SA,
	"sunday":    rrule.SU,
}

// WeeklyOptions configures the fixed weekly calculator.
type WeeklyOptions struct {
	Weekday        string
	CandleLighting string
	// Havdalah is optional.
	Havdalah     string
	HorizonWeeks int
	Location     *time.Location
	Now          func() time.Time
}

// Weekly produces records from a fixed weekly schedule. It ignores the
// coordinates and is meant for offline installs.
type Weekly struct {
	opts    WeeklyOptions
	weekday rrule.Weekday
}

func NewWeekly(opts WeeklyOptions) (*Weekly, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(opts.Weekday))]
	if !ok {
		return nil, fmt.Errorf("weekly: unknown weekday %q", opts.Weekday)
	}
	if _, _, _, err := model.ParseClock(opts.CandleLighting); err != nil {
		return nil, fmt.Errorf("weekly: candle_lighting: %w", err)
	}
	if opts.Havdalah != "" {
		if _, _, _, err := model.ParseClock(opts.Havdalah); err != nil {
			return nil, fmt.Errorf("weekly: havdalah: %w", err)
		}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonWeeks <= 0 {
		opts.HorizonWeeks = 8
	}
	return &Weekly{opts: opts, weekday: wd}, nil
}

func (w *Weekly) Calculate(ctx context.Context, _, _ float64, city string) ([]model.TimeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCalculation, err)
	}

	now := w.opts.Now().In(w.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.opts.Location)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{w.weekday},
		Dtstart:   today,
		Count:     w.opts.HorizonWeeks,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rrule: %v", ErrCalculation, err)
	}

	days := r.All()
	records := make([]model.TimeRecord, 0, len(days))
	for _, day := range days {
		rec := model.TimeRecord{
			Date:           day.Format(dateLayout),
			CandleLighting: w.opts.CandleLighting,
			Havdalah:       w.opts.Havdalah,
			City:           city,
		}
		records = append(records, rec)
	}
	appLog.Debug("weekly times calculated", "weekday", w.opts.Weekday, "records", len(records))
	return records, nil
}
