package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
timezone: America/New_York
location:
  mode: static
  latitude: 40.7
  longitude: -74.0
  city: New York
times:
  provider: WEEKLY
  weekly:
    candle_lighting: "19:15"
storage:
  backend: bogus
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, LocationStatic, cfg.Location.Mode)
	assert.Equal(t, "New York", cfg.Location.City)
	assert.Equal(t, ProviderWeekly, cfg.Times.Provider)
	assert.Equal(t, "19:15", cfg.Times.Weekly.CandleLighting)
	assert.Equal(t, "friday", cfg.Times.Weekly.Weekday)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, "@every 1m", cfg.AlarmCron)
	assert.Len(t, cfg.Sounds, 7)

	loc, err := cfg.TimeZone()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestTimeZone(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Timezone = ""
	loc, err := cfg.TimeZone()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Timezone = "Asia/Jerusalem"
	loc, err = cfg.TimeZone()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jerusalem", loc.String())

	cfg.Timezone = "Not/AZone"
	loc, err = cfg.TimeZone()
	assert.Error(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Location.Mode = LocationStatic
	cfg.Normalize()
	assert.Equal(t, LocationStatic, cfg.Location.Mode)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = "0.0.0.0:9090"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestSoundLookup(t *testing.T) {
	cfg := DefaultConfig()

	s, ok := cfg.Sound("sound3")
	require.True(t, ok)
	assert.Equal(t, 3, s.Beeps)

	_, ok = cfg.Sound("nope")
	assert.False(t, ok)
}

func TestSaveRejectsEmptyInputs(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}
