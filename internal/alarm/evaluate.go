package alarm

import (
	"fmt"
	"time"

	"shabbatd/internal/model"
)

// Window is the width of the firing window. It matches the check period so
// that a one-minute tick lands in it once.
const Window = 60 * time.Second

// Decision is the outcome of one evaluation.
type Decision struct {
	Fire           bool
	CandleLighting time.Time
	AlarmAt        time.Time
}

// Evaluate decides whether the alarm for rec fires at now:
// now in [candle lighting - offset, candle lighting - offset + Window).
func Evaluate(now time.Time, rec model.TimeRecord, cfg model.AlarmConfig, loc *time.Location) (Decision, error) {
	if cfg.OffsetMinutes <= 0 {
		return Decision{}, fmt.Errorf("alarm: offset must be positive, got %d", cfg.OffsetMinutes)
	}
	candle, err := rec.CandleLightingAt(loc)
	if err != nil {
		return Decision{}, fmt.Errorf("alarm: candle lighting for %s: %w", rec.Date, err)
	}
	at := candle.Add(-time.Duration(cfg.OffsetMinutes) * time.Minute)
	return Decision{
		Fire:           !now.Before(at) && now.Before(at.Add(Window)),
		CandleLighting: candle,
		AlarmAt:        at,
	}, nil
}
