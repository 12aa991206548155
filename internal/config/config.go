package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// Location modes.
const (
	LocationStatic = "static"
	LocationIP     = "ip"
)

// Time calculator providers.
const (
	ProviderHebcal = "hebcal"
	ProviderWeekly = "weekly"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageValkey = "valkey"
	StorageMemory = "memory"
)

// Audio backends.
const (
	AudioOto    = "oto"
	AudioBuzzer = "buzzer"
	AudioLog    = "log"
)

// LocationConfig describes how the user's position is resolved.
type LocationConfig struct {
	// Mode is "static" (use the coordinates below) or "ip" (geolocate by IP).
	Mode      string  `yaml:"mode" json:"mode"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	City      string  `yaml:"city" json:"city"`
	// LookupURL is an ip-api compatible endpoint used when Mode is "ip".
	LookupURL string `yaml:"lookup_url" json:"lookup_url"`
}

// WeeklyConfig is the fixed schedule used by the "weekly" provider.
type WeeklyConfig struct {
	// Weekday is the candle-lighting day, "friday" unless overridden.
	Weekday        string `yaml:"weekday" json:"weekday"`
	CandleLighting string `yaml:"candle_lighting" json:"candle_lighting"`
	Havdalah       string `yaml:"havdalah" json:"havdalah"`
}

// TimesConfig selects and tunes the Shabbat time calculator.
type TimesConfig struct {
	Provider string `yaml:"provider" json:"provider"`

	// HebcalURL is the base URL of the Hebcal iCalendar endpoint.
	HebcalURL string `yaml:"hebcal_url" json:"hebcal_url"`
	// CandleMinutes is minutes before sunset for candle lighting.
	CandleMinutes int `yaml:"candle_minutes" json:"candle_minutes"`
	// HavdalahMinutes is minutes after sunset for havdalah; 0 means tzeit hakochavim.
	HavdalahMinutes int `yaml:"havdalah_minutes" json:"havdalah_minutes"`

	// HorizonWeeks is how many weeks ahead are calculated per refresh.
	HorizonWeeks int `yaml:"horizon_weeks" json:"horizon_weeks"`

	Weekly WeeklyConfig `yaml:"weekly" json:"weekly"`
}

// StorageConfig selects where the cache and alarm preference live.
type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// Dir is the directory used by the file backend.
	Dir string `yaml:"dir" json:"dir"`

	ValkeyAddr   string `yaml:"valkey_addr" json:"valkey_addr"`
	ValkeyPrefix string `yaml:"valkey_prefix" json:"valkey_prefix"`
}

// AudioConfig selects the playback backend.
type AudioConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// GPIOPin names the buzzer pin for the buzzer backend, e.g. "GPIO18".
	GPIOPin string `yaml:"gpio_pin" json:"gpio_pin"`
}

// SoundConfig is one entry of the alarm sound catalog.
type SoundConfig struct {
	// ID is the opaque reference persisted in the alarm preference.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Path is a WAV file played by the oto backend.
	Path string `yaml:"path" json:"path,omitempty"`
	// Beeps is the beep count used by the buzzer backend.
	Beeps int `yaml:"beeps" json:"beeps,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone candle-lighting times are expressed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule for re-running the load flow.
	// Empty disables scheduled reloads (the flow still runs at startup).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// AlarmCron is the cron schedule of the alarm check.
	AlarmCron string `yaml:"alarm_check" json:"alarm_check"`

	Location LocationConfig `yaml:"location" json:"location"`
	Times    TimesConfig    `yaml:"times" json:"times"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Audio    AudioConfig    `yaml:"audio" json:"audio"`

	// Sounds is the alarm sound catalog offered to the user.
	Sounds []SoundConfig `yaml:"sounds" json:"sounds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "Asia/Jerusalem"
	defaultRefreshCron  = "0 * * * *"
	defaultAlarmCron    = "@every 1m"
	defaultHebcalURL    = "https://www.hebcal.com/hebcal"
	defaultLookupURL    = "http://ip-api.com/json/"
	defaultStorageDir   = "/var/lib/shabbatd"
	defaultValkeyPrefix = "shabbatd:"
	defaultCandleMin    = 18
	defaultHorizonWeeks = 8
)

// DefaultSounds mirrors the seven bundled alarm sounds.
func DefaultSounds() []SoundConfig {
	sounds := make([]SoundConfig, 0, 7)
	for i := 1; i <= 7; i++ {
		id := "sound" + string(rune('0'+i))
		sounds = append(sounds, SoundConfig{
			ID:    id,
			Name:  id,
			Path:  filepath.Join("/usr/share/shabbatd/sounds", id+".wav"),
			Beeps: i,
		})
	}
	return sounds
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		LogLevel:    "info",
		RefreshCron: defaultRefreshCron,
		AlarmCron:   defaultAlarmCron,
		Location: LocationConfig{
			Mode:      LocationIP,
			LookupURL: defaultLookupURL,
		},
		Times: TimesConfig{
			Provider:      ProviderHebcal,
			HebcalURL:     defaultHebcalURL,
			CandleMinutes: defaultCandleMin,
			HorizonWeeks:  defaultHorizonWeeks,
			Weekly: WeeklyConfig{
				Weekday:        "friday",
				CandleLighting: "18:00",
			},
		},
		Storage: StorageConfig{
			Backend:      StorageFile,
			Dir:          defaultStorageDir,
			ValkeyPrefix: defaultValkeyPrefix,
		},
		Audio: AudioConfig{
			Backend: AudioLog,
		},
		Sounds:    DefaultSounds(),
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AlarmCron == "" {
		c.AlarmCron = defaultAlarmCron
	}

	switch c.Location.Mode {
	case LocationStatic, LocationIP:
	default:
		c.Location.Mode = LocationIP
	}
	if c.Location.LookupURL == "" {
		c.Location.LookupURL = defaultLookupURL
	}

	c.Times.Provider = strings.ToLower(c.Times.Provider)
	switch c.Times.Provider {
	case ProviderHebcal, ProviderWeekly:
	default:
		c.Times.Provider = ProviderHebcal
	}
	if c.Times.HebcalURL == "" {
		c.Times.HebcalURL = defaultHebcalURL
	}
	if c.Times.CandleMinutes <= 0 {
		c.Times.CandleMinutes = defaultCandleMin
	}
	if c.Times.HorizonWeeks <= 0 {
		c.Times.HorizonWeeks = defaultHorizonWeeks
	}
	if c.Times.Weekly.Weekday == "" {
		c.Times.Weekly.Weekday = "friday"
	}
	if c.Times.Weekly.CandleLighting == "" {
		c.Times.Weekly.CandleLighting = "18:00"
	}

	switch c.Storage.Backend {
	case StorageFile, StorageValkey, StorageMemory:
	default:
		c.Storage.Backend = StorageFile
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = defaultStorageDir
	}
	if c.Storage.ValkeyPrefix == "" {
		c.Storage.ValkeyPrefix = defaultValkeyPrefix
	}

	switch c.Audio.Backend {
	case AudioOto, AudioBuzzer, AudioLog:
	default:
		c.Audio.Backend = AudioLog
	}

	if len(c.Sounds) == 0 {
		c.Sounds = DefaultSounds()
	}
}

// TimeZone loads the configured timezone, falling back to time.Local.
func (c *Config) TimeZone() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Sound looks up a catalog entry by ID.
func (c *Config) Sound(id string) (SoundConfig, bool) {
	for _, s := range c.Sounds {
		if s.ID == id {
			return s, true
		}
	}
	return SoundConfig{}, false
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return WriteFileAtomic(path, data, ".shabbatd-config-*.tmp")
}

// WriteFileAtomic writes data next to path in a temp file, fsyncs it, sets
// 0600 and renames it over path. The parent directory is created (0700).
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
