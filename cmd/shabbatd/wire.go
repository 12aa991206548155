package main

import (
	"fmt"
	"path/filepath"
	"time"

	"shabbatd/internal/audio"
	"shabbatd/internal/config"
	"shabbatd/internal/ics"
	"shabbatd/internal/kv"
	"shabbatd/internal/location"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
	"shabbatd/internal/times"
)

const debugStateDir = "./cache"

func stateDir(conf *config.Config, debug bool) string {
	if debug {
		return debugStateDir
	}
	return conf.Storage.Dir
}

func buildStore(conf *config.Config, debug bool) (kv.Store, error) {
	switch conf.Storage.Backend {
	case config.StorageMemory:
		return kv.NewMemoryStore(), nil
	case config.StorageValkey:
		s, err := kv.DialValkey(conf.Storage.ValkeyAddr, conf.Storage.ValkeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("valkey %s: %w", conf.Storage.ValkeyAddr, err)
		}
		return s, nil
	case config.StorageFile, "":
		s, err := kv.NewFileStore(stateDir(conf, debug))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", conf.Storage.Backend)
	}
}

func buildLocator(conf *config.Config) location.Provider {
	if conf.Location.Mode == config.LocationStatic {
		return location.Static{Loc: model.Location{
			Latitude:  conf.Location.Latitude,
			Longitude: conf.Location.Longitude,
			City:      conf.Location.City,
		}}
	}
	return location.NewIPLookup(conf.Location.LookupURL)
}

func buildCalculator(conf *config.Config, loc *time.Location, debug bool) (times.Calculator, error) {
	switch conf.Times.Provider {
	case config.ProviderWeekly:
		w, err := times.NewWeekly(times.WeeklyOptions{
			Weekday:        conf.Times.Weekly.Weekday,
			CandleLighting: conf.Times.Weekly.CandleLighting,
			Havdalah:       conf.Times.Weekly.Havdalah,
			HorizonWeeks:   conf.Times.HorizonWeeks,
			Location:       loc,
		})
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.ProviderHebcal, "":
		cacheDir := ""
		if conf.Storage.Backend != config.StorageMemory {
			cacheDir = filepath.Join(stateDir(conf, debug), "ics-cache")
		}
		return times.NewHebcal(ics.NewFetcher(cacheDir), times.HebcalOptions{
			BaseURL:         conf.Times.HebcalURL,
			CandleMinutes:   conf.Times.CandleMinutes,
			HavdalahMinutes: conf.Times.HavdalahMinutes,
			HorizonWeeks:    conf.Times.HorizonWeeks,
			Location:        loc,
		}), nil
	default:
		return nil, fmt.Errorf("unknown times provider %q", conf.Times.Provider)
	}
}

// buildAudio falls back to the log backend when the configured hardware
// cannot be opened, so the alarm still shows up in the journal.
func buildAudio(conf *config.Config) audio.Backend {
	catalog := audio.Catalog(conf.Sounds)
	switch conf.Audio.Backend {
	case config.AudioOto:
		return audio.NewOtoBackend(catalog)
	case config.AudioBuzzer:
		b, err := audio.NewBuzzerBackend(catalog, conf.Audio.GPIOPin)
		if err != nil {
			appLog.Error("buzzer unavailable; logging alarms instead", err, "pin", conf.Audio.GPIOPin)
			return audio.NewLogBackend(catalog)
		}
		return b
	default:
		return audio.NewLogBackend(catalog)
	}
}
