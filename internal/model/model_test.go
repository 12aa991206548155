package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine(t *testing.T) {
	loc := time.FixedZone("IST", 3*60*60)

	got, err := Combine("2025-06-13", "19:32", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 13, 19, 32, 0, 0, loc), got)

	got, err = Combine("2025-06-13", "7:32pm", loc)
	require.NoError(t, err)
	assert.Equal(t, 19, got.Hour())

	got, err = Combine("2025-06-13T00:00:00Z", "18:00:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 13, 18, 0, 30, 0, loc), got)
}

func TestCombineRejectsGarbage(t *testing.T) {
	_, err := Combine("13/06/2025", "19:32", time.UTC)
	assert.Error(t, err)

	_, err = Combine("2025-06-13", "sunset", time.UTC)
	assert.Error(t, err)

	_, err = Combine("", "19:32", time.UTC)
	assert.Error(t, err)
}

func TestTimeRecordValidate(t *testing.T) {
	assert.NoError(t, TimeRecord{Date: "2025-06-13", CandleLighting: "19:32"}.Validate())
	assert.Error(t, TimeRecord{Date: "2025-06-13"}.Validate())
	assert.Error(t, TimeRecord{CandleLighting: "19:32"}.Validate())
}

func TestEnvelopeJSONShape(t *testing.T) {
	fetched := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	env := Envelope{
		Data:      []TimeRecord{{Date: "2025-06-13", CandleLighting: "19:32"}},
		Timestamp: NewEpochMillis(fetched),
	}

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"date":"2025-06-13","candle_lighting":"19:32"}],"timestamp":1749556800000}`, string(b))

	var back Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"data":[],"timestamp":1749556800000.0}`), &back))
	assert.True(t, back.FetchedAt().Equal(fetched))
}

func TestAlarmConfigJSONShape(t *testing.T) {
	b, err := json.Marshal(AlarmConfig{OffsetMinutes: 10, SoundID: "sound2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":10,"sound":"sound2"}`, string(b))
}
