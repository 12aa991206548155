package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"shabbatd/internal/alarm"
	"shabbatd/internal/audio"
	"shabbatd/internal/cache"
	"shabbatd/internal/config"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/refresh"
	"shabbatd/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
	ephemeral  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	} else {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}
	if flags.ephemeral {
		conf.Storage.Backend = config.StorageMemory
	}

	appLog.Info("shabbatd starting", "version", "0.1.0")

	loc, err := conf.TimeZone()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"alarm_check", conf.AlarmCron,
		"location_mode", conf.Location.Mode,
		"provider", conf.Times.Provider,
		"storage", conf.Storage.Backend,
		"audio", conf.Audio.Backend,
		"sounds", len(conf.Sounds),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(conf, flags.debug)
	if err != nil {
		appLog.Error("failed to open storage", err, "backend", conf.Storage.Backend)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLog.Error("storage close failed", err)
		}
	}()

	calculator, err := buildCalculator(conf, loc, flags.debug)
	if err != nil {
		appLog.Error("failed to build time calculator", err, "provider", conf.Times.Provider)
		return 1
	}

	orch := refresh.New(cache.New(store, nil), buildLocator(conf), calculator, refresh.Options{Location: loc})

	// Failure is logged inside Load; the daemon keeps running with no selection.
	_ = orch.Load(ctx)

	if flags.once {
		rec, ok := orch.Selected()
		if !ok {
			appLog.Warn("no upcoming shabbat available")
			return 1
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			appLog.Error("failed to write record", err)
			return 1
		}
		return 0
	}

	backend := buildAudio(conf)
	alarms := alarm.NewConfigStore(store)

	// Preview and alarm share one output; the alarm wins.
	previewer := audio.NewPreviewer(backend)
	defer previewer.StopPreview()

	scheduler := alarm.NewScheduler(alarms, orch.Selected, backend, alarm.Options{
		Spec:       conf.AlarmCron,
		Location:   loc,
		BeforePlay: previewer.StopPreview,
	})
	if err := scheduler.Start(); err != nil {
		appLog.Error("failed to start alarm scheduler", err)
		return 1
	}
	defer scheduler.Stop()

	if conf.RefreshCron != "" {
		logger := appLog.CronLogger("refresh")
		reload := cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		)
		if _, err := reload.AddFunc(conf.RefreshCron, func() {
			_ = orch.Load(ctx)
		}); err != nil {
			appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
			return 1
		}
		reload.Start()
		defer func() { <-reload.Stop().Done() }()
	}

	srv := web.NewServer(conf, loc, orch, alarms, previewer, scheduler)
	if err := web.Serve(ctx, conf.Listen, srv.Handler()); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		return 1
	}

	appLog.Info("shabbatd exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/shabbatd/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load times, print the next Shabbat as JSON and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging; keep state under ./cache")
	flag.BoolVar(&cfg.ephemeral, "ephemeral", false, "Keep cache and alarm preference in memory only")

	flag.Parse()

	return cfg
}
