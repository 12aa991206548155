package times

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatd/internal/ics"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const hebcalFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//hebcal.com/NONSGML Hebcal Calendar v5//EN
BEGIN:VEVENT
DTSTAMP:20250601T000000Z
SUMMARY:Candle lighting
DTSTART:20250613T161200Z
UID:c1
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250601T000000Z
SUMMARY:Parashat Beha'alotcha
DTSTART;VALUE=DATE:20250614
UID:p1
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250601T000000Z
SUMMARY:Havdalah (50 min)
DTSTART:20250614T172500Z
UID:h1
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250601T000000Z
SUMMARY:Candle lighting
DTSTART:20250620T161500Z
UID:c2
END:VEVENT
END:VCALENDAR
`

func serveFeed(t *testing.T, body string, status int) (*httptest.Server, func() url.Values) {
	t.Helper()
	var (
		mu   sync.Mutex
		last url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.URL.Query()
		mu.Unlock()
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n")))
	}))
	t.Cleanup(srv.Close)
	return srv, func() url.Values {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestHebcalBuildsRecords(t *testing.T) {
	loc := time.FixedZone("IDT", 3*60*60)
	srv, query := serveFeed(t, hebcalFeed, http.StatusOK)

	h := NewHebcal(ics.NewFetcher(""), HebcalOptions{
		BaseURL:       srv.URL + "/hebcal",
		CandleMinutes: 40,
		HorizonWeeks:  4,
		Location:      loc,
		Now:           func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, loc) },
	})

	records, err := h.Calculate(context.Background(), 31.7683, 35.2137, "Jerusalem")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.TimeRecord{
		Date:           "2025-06-13",
		CandleLighting: "19:12",
		Havdalah:       "20:25",
		Parasha:        "Parashat Beha'alotcha",
		City:           "Jerusalem",
	}, records[0])
	assert.Equal(t, "2025-06-20", records[1].Date)
	assert.Equal(t, "19:15", records[1].CandleLighting)
	assert.Empty(t, records[1].Havdalah)

	q := query()
	assert.Equal(t, "ics", q.Get("cfg"))
	assert.Equal(t, "pos", q.Get("geo"))
	assert.Equal(t, "31.7683", q.Get("latitude"))
	assert.Equal(t, "35.2137", q.Get("longitude"))
	assert.Equal(t, "40", q.Get("b"))
	assert.Equal(t, "on", q.Get("M"))
	assert.Equal(t, "2025-06-09", q.Get("start"))
	assert.Equal(t, "2025-07-08", q.Get("end"))
}

func TestHebcalHavdalahMinutes(t *testing.T) {
	srv, query := serveFeed(t, hebcalFeed, http.StatusOK)
	h := NewHebcal(ics.NewFetcher(""), HebcalOptions{
		BaseURL:         srv.URL,
		HavdalahMinutes: 50,
		Location:        time.UTC,
	})

	_, err := h.Calculate(context.Background(), 40.7, -74, "")
	require.NoError(t, err)
	assert.Equal(t, "50", query().Get("m"))
	assert.Empty(t, query().Get("M"))
}

func TestHebcalUpstreamFailure(t *testing.T) {
	srv, _ := serveFeed(t, "", http.StatusServiceUnavailable)
	h := NewHebcal(ics.NewFetcher(""), HebcalOptions{BaseURL: srv.URL, Location: time.UTC})

	_, err := h.Calculate(context.Background(), 1, 2, "x")
	assert.ErrorIs(t, err, ErrCalculation)
}

func TestHebcalFeedWithoutCandles(t *testing.T) {
	feed := `BEGIN:VCALENDAR
VERSION:2.0
PRODID:test
BEGIN:VEVENT
DTSTAMP:20250601T000000Z
SUMMARY:Havdalah (50 min)
DTSTART:20250614T172500Z
UID:h1
END:VEVENT
END:VCALENDAR
`
	srv, _ := serveFeed(t, feed, http.StatusOK)
	h := NewHebcal(ics.NewFetcher(""), HebcalOptions{BaseURL: srv.URL, Location: time.UTC})

	_, err := h.Calculate(context.Background(), 1, 2, "x")
	assert.ErrorIs(t, err, ErrCalculation)
}

func TestWeeklyCalculate(t *testing.T) {
	loc := time.FixedZone("IDT", 3*60*60)
	// Wednesday.
	now := time.Date(2025, 6, 11, 9, 0, 0, 0, loc)

	w, err := NewWeekly(WeeklyOptions{
		Weekday:        "Friday",
		CandleLighting: "18:45",
		Havdalah:       "20:00",
		HorizonWeeks:   3,
		Location:       loc,
		Now:            func() time.Time { return now },
	})
	require.NoError(t, err)

	records, err := w.Calculate(context.Background(), 0, 0, "Haifa")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "2025-06-13", records[0].Date)
	assert.Equal(t, "2025-06-20", records[1].Date)
	assert.Equal(t, "2025-06-27", records[2].Date)
	for _, r := range records {
		assert.Equal(t, "18:45", r.CandleLighting)
		assert.Equal(t, "20:00", r.Havdalah)
		assert.Equal(t, "Haifa", r.City)
		require.NoError(t, r.Validate())
	}
}

func TestWeeklyIncludesToday(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 6, 13, 20, 0, 0, 0, loc)
	w, err := NewWeekly(WeeklyOptions{Weekday: "friday", CandleLighting: "18:00", HorizonWeeks: 1, Location: loc, Now: func() time.Time { return now }})
	require.NoError(t, err)

	records, err := w.Calculate(context.Background(), 0, 0, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2025-06-13", records[0].Date)
}

func TestNewWeeklyValidation(t *testing.T) {
	_, err := NewWeekly(WeeklyOptions{Weekday: "someday", CandleLighting: "18:00"})
	assert.Error(t, err)

	_, err = NewWeekly(WeeklyOptions{Weekday: "friday", CandleLighting: "late"})
	assert.Error(t, err)

	_, err = NewWeekly(WeeklyOptions{Weekday: "friday", CandleLighting: "18:00", Havdalah: "25:99"})
	assert.Error(t, err)
}

func TestWeeklyCanceledContext(t *testing.T) {
	w, err := NewWeekly(WeeklyOptions{Weekday: "friday", CandleLighting: "18:00"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Calculate(ctx, 0, 0, "")
	assert.ErrorIs(t, err, ErrCalculation)
}
