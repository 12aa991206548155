package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatd/internal/audio"
	"shabbatd/internal/config"
	"shabbatd/internal/kv"
	"shabbatd/internal/location"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/times"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestBuildStore(t *testing.T) {
	conf := config.DefaultConfig()

	conf.Storage.Backend = config.StorageMemory
	s, err := buildStore(conf, false)
	require.NoError(t, err)
	assert.IsType(t, &kv.MemoryStore{}, s)

	conf.Storage.Backend = config.StorageFile
	conf.Storage.Dir = t.TempDir()
	s, err = buildStore(conf, false)
	require.NoError(t, err)
	assert.IsType(t, &kv.FileStore{}, s)

	conf.Storage.Backend = "floppy"
	_, err = buildStore(conf, false)
	assert.Error(t, err)
}

func TestBuildLocator(t *testing.T) {
	conf := config.DefaultConfig()
	assert.IsType(t, &location.IPLookup{}, buildLocator(conf))

	conf.Location.Mode = config.LocationStatic
	conf.Location.Latitude, conf.Location.Longitude = 32.79, 34.99
	assert.IsType(t, location.Static{}, buildLocator(conf))
}

func TestBuildCalculator(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Storage.Backend = config.StorageMemory

	c, err := buildCalculator(conf, time.UTC, false)
	require.NoError(t, err)
	assert.IsType(t, &times.Hebcal{}, c)

	conf.Times.Provider = config.ProviderWeekly
	c, err = buildCalculator(conf, time.UTC, false)
	require.NoError(t, err)
	assert.IsType(t, &times.Weekly{}, c)

	conf.Times.Weekly.Weekday = "caturday"
	_, err = buildCalculator(conf, time.UTC, false)
	assert.Error(t, err)
}

func TestBuildAudioDefaultsToLog(t *testing.T) {
	conf := config.DefaultConfig()
	assert.IsType(t, &audio.LogBackend{}, buildAudio(conf))

	conf.Audio.Backend = config.AudioOto
	assert.IsType(t, &audio.OtoBackend{}, buildAudio(conf))
}
