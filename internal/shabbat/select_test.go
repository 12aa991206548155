package shabbat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatd/internal/model"
)

func rec(date string) model.TimeRecord {
	return model.TimeRecord{Date: date, CandleLighting: "19:30"}
}

func TestSelectNextEmpty(t *testing.T) {
	_, ok := SelectNext(nil, time.Now(), time.UTC)
	assert.False(t, ok)
}

func TestSelectNextAllPast(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	_, ok := SelectNext([]model.TimeRecord{rec("2025-05-30"), rec("2025-06-06")}, now, time.UTC)
	assert.False(t, ok)
}

func TestSelectNextUnsorted(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	records := []model.TimeRecord{rec("2025-06-20"), rec("2024-01-01"), rec("2025-06-13"), rec("2025-06-06")}

	got, ok := SelectNext(records, now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2025-06-13", got.Date)
}

func TestSelectNextSkipsPastWeeks(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	got, ok := SelectNext([]model.TimeRecord{rec("2024-01-01"), rec("2025-06-06"), rec("2025-06-13")}, now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2025-06-13", got.Date)
}

func TestSelectNextKeepsTodayAllDay(t *testing.T) {
	loc := time.FixedZone("IDT", 3*60*60)
	// Friday evening after candle lighting is still "this" Shabbat.
	now := time.Date(2025, 6, 13, 21, 0, 0, 0, loc)

	got, ok := SelectNext([]model.TimeRecord{rec("2025-06-20"), rec("2025-06-13")}, now, loc)
	require.True(t, ok)
	assert.Equal(t, "2025-06-13", got.Date)

	// One second past midnight the record's own midnight is already behind.
	now = time.Date(2025, 6, 13, 0, 0, 1, 0, loc)
	got, ok = SelectNext([]model.TimeRecord{rec("2025-06-20"), rec("2025-06-13")}, now, loc)
	require.True(t, ok)
	assert.Equal(t, "2025-06-13", got.Date)
}

func TestSelectNextUsesLocationCalendarDay(t *testing.T) {
	loc := time.FixedZone("IDT", 3*60*60)
	// 22:30 UTC Friday is already Saturday 01:30 in loc.
	now := time.Date(2025, 6, 13, 22, 30, 0, 0, time.UTC)

	got, ok := SelectNext([]model.TimeRecord{rec("2025-06-13"), rec("2025-06-20")}, now, loc)
	require.True(t, ok)
	assert.Equal(t, "2025-06-20", got.Date)
}

func TestSelectNextTieKeepsFirst(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	first := model.TimeRecord{Date: "2025-06-13", CandleLighting: "19:30", City: "first"}
	second := model.TimeRecord{Date: "2025-06-13", CandleLighting: "19:31", City: "second"}

	got, ok := SelectNext([]model.TimeRecord{first, second}, now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "first", got.City)
}

func TestSelectNextSkipsUnparseable(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	got, ok := SelectNext([]model.TimeRecord{rec("soon"), rec("2025-06-13")}, now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, "2025-06-13", got.Date)
}
