package times

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shabbatd/internal/ics"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

const dateLayout = model.DateLayout

// HebcalOptions tunes the Hebcal feed request.
type HebcalOptions struct {
	BaseURL string
	// CandleMinutes before sunset (Hebcal "b").
	CandleMinutes int
	// HavdalahMinutes after sunset (Hebcal "m"); 0 requests tzeit hakochavim.
	HavdalahMinutes int
	HorizonWeeks    int
	Location        *time.Location
	Now             func() time.Time
}

// Hebcal calculates times by downloading an iCalendar feed from Hebcal for
// the coordinates and reading its candle-lighting, havdalah and parasha
// events.
type Hebcal struct {
	fetcher *ics.Fetcher
	opts    HebcalOptions
}

func NewHebcal(fetcher *ics.Fetcher, opts HebcalOptions) *Hebcal {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonWeeks <= 0 {
		opts.HorizonWeeks = 8
	}
	return &Hebcal{fetcher: fetcher, opts: opts}
}

func (h *Hebcal) Calculate(ctx context.Context, latitude, longitude float64, city string) ([]model.TimeRecord, error) {
	feedURL, err := h.feedURL(latitude, longitude)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalculation, err)
	}

	res, err := h.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %w", ErrCalculation, err)
	}

	events, err := ics.Parse(res.Body, h.opts.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrCalculation, err)
	}

	records := recordsFromEvents(events, city)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: feed has no candle-lighting events", ErrCalculation)
	}
	appLog.Info("hebcal times calculated", "city", city, "records", len(records), "from_cache", res.FromCache)
	return records, nil
}

func (h *Hebcal) feedURL(latitude, longitude float64) (string, error) {
	base, err := url.Parse(h.opts.BaseURL)
	if err != nil {
		return "", err
	}
	now := h.opts.Now().In(h.opts.Location)
	start := now.AddDate(0, 0, -1)
	end := now.AddDate(0, 0, 7*h.opts.HorizonWeeks)

	q := base.Query()
	q.Set("v", "1")
	q.Set("cfg", "ics")
	q.Set("maj", "off")
	q.Set("min", "off")
	q.Set("mod", "off")
	q.Set("nx", "off")
	q.Set("ss", "off")
	q.Set("mf", "off")
	q.Set("c", "on")
	q.Set("s", "on")
	q.Set("geo", "pos")
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', 4, 64))
	q.Set("tzid", h.opts.Location.String())
	if h.opts.CandleMinutes > 0 {
		q.Set("b", strconv.Itoa(h.opts.CandleMinutes))
	}
	if h.opts.HavdalahMinutes > 0 {
		q.Set("m", strconv.Itoa(h.opts.HavdalahMinutes))
	} else {
		q.Set("M", "on")
	}
	q.Set("start", start.Format(dateLayout))
	q.Set("end", end.Format(dateLayout))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// recordsFromEvents turns sorted feed events into records: one per
// candle-lighting event, with the following havdalah and parasha attached
// to the closest preceding record within two days.
func recordsFromEvents(events []ics.Event, city string) []model.TimeRecord {
	records := make([]model.TimeRecord, 0)
	days := make([]time.Time, 0)

	attach := func(on time.Time, apply func(*model.TimeRecord)) {
		for i := len(records) - 1; i >= 0; i-- {
			if days[i].After(on) {
				continue
			}
			if on.Sub(days[i]) <= 48*time.Hour {
				apply(&records[i])
			}
			return
		}
	}

	for _, ev := range events {
		summary := strings.ToLower(ev.Summary)
		day := time.Date(ev.Start.Year(), ev.Start.Month(), ev.Start.Day(), 0, 0, 0, 0, ev.Start.Location())

		switch {
		case strings.HasPrefix(summary, "candle lighting") && !ev.AllDay:
			records = append(records, model.TimeRecord{
				Date:           ev.Start.Format(dateLayout),
				CandleLighting: ev.Start.Format("15:04"),
				City:           city,
			})
			days = append(days, day)
		case strings.HasPrefix(summary, "havdalah") && !ev.AllDay:
			attach(day, func(r *model.TimeRecord) {
				if r.Havdalah == "" {
					r.Havdalah = ev.Start.Format("15:04")
				}
			})
		case strings.HasPrefix(summary, "parashat") || strings.HasPrefix(summary, "parashas"):
			attach(day, func(r *model.TimeRecord) {
				if r.Parasha == "" {
					r.Parasha = ev.Summary
				}
			})
		}
	}
	return records
}
