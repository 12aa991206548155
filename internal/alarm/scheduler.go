// Package alarm holds the pre-candle-lighting alarm: its persisted
// preference, the firing-window evaluation and the periodic check that plays
// the configured sound.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"shabbatd/internal/audio"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

// DefaultSpec runs the check once a minute.
const DefaultSpec = "@every 1m"

// SelectedFunc returns the currently selected Shabbat record, if any.
type SelectedFunc func() (model.TimeRecord, bool)

// Options configures a Scheduler.
type Options struct {
	// Spec is the cron schedule of the check; DefaultSpec if empty.
	Spec     string
	Location *time.Location
	Now      func() time.Time
	// BeforePlay runs ahead of every alarm playback. Other users of the
	// audio output, such as a sound preview, are stopped here.
	BeforePlay func()
}

// Firing describes one alarm playback.
type Firing struct {
	ID      string    `json:"id"`
	Sound   string    `json:"sound"`
	AlarmAt time.Time `json:"alarm_at"`
	FiredAt time.Time `json:"fired_at"`
}

// Scheduler owns the periodic alarm check. It does nothing until Start and
// must be stopped by its owner; Stop waits for a running check and releases
// the last alarm sound.
type Scheduler struct {
	configs  *ConfigStore
	selected SelectedFunc
	backend  audio.Backend
	loc      *time.Location
	now      func() time.Time
	spec     string
	before   func()

	mu      sync.Mutex
	cron    *cron.Cron
	current audio.Handle
	last    Firing
}

func NewScheduler(configs *ConfigStore, selected SelectedFunc, backend audio.Backend, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		configs:  configs,
		selected: selected,
		backend:  backend,
		loc:      opts.Location,
		now:      opts.Now,
		spec:     opts.Spec,
		before:   opts.BeforePlay,
	}
}

// Start schedules the check. Starting a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("alarm: scheduler already started")
	}

	logger := appLog.CronLogger("alarm")
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.Check(context.Background()); err != nil {
			appLog.Error("alarm check failed", err)
		}
	}); err != nil {
		return fmt.Errorf("alarm: schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.cron = c
	appLog.Info("alarm scheduler started", "spec", s.spec)
	return nil
}

// Stop cancels the schedule, waits for an in-flight check and releases the
// last alarm sound. It is safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		appLog.Info("alarm scheduler stopped")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Check runs one evaluation. It reports whether the alarm fired; a missing
// preference or selection is a silent no-op.
func (s *Scheduler) Check(ctx context.Context) (bool, error) {
	rec, ok := s.selected()
	if !ok {
		appLog.Debug("alarm check skipped: no selected shabbat")
		return false, nil
	}
	cfg, ok := s.configs.Load(ctx)
	if !ok {
		appLog.Debug("alarm check skipped: no alarm configured")
		return false, nil
	}

	now := s.now()
	d, err := Evaluate(now, rec, cfg, s.loc)
	if err != nil {
		return false, err
	}
	if !d.Fire {
		return false, nil
	}

	f := Firing{ID: uuid.NewString(), Sound: cfg.SoundID, AlarmAt: d.AlarmAt, FiredAt: now}
	appLog.Info("alarm firing",
		"id", f.ID,
		"date", rec.Date,
		"candle_lighting", d.CandleLighting.Format(time.RFC3339),
		"alarm_at", d.AlarmAt.Format(time.RFC3339),
		"offset_minutes", cfg.OffsetMinutes,
		"sound", cfg.SoundID,
	)
	if err := s.play(f); err != nil {
		return false, err
	}
	return true, nil
}

// LastFiring returns the most recent successful firing, if any.
func (s *Scheduler) LastFiring() (Firing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last.ID != ""
}

func (s *Scheduler) play(f Firing) error {
	if s.before != nil {
		s.before()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	h, err := s.backend.Load(f.Sound)
	if err != nil {
		return fmt.Errorf("alarm: load sound: %w", err)
	}
	s.current = h
	if err := h.Play(); err != nil {
		return fmt.Errorf("alarm: play sound: %w", err)
	}
	s.last = f
	return nil
}

func (s *Scheduler) releaseLocked() {
	if s.current == nil {
		return
	}
	if err := audio.Release(s.current); err != nil {
		appLog.Error("alarm sound release failed", err)
	}
	s.current = nil
}
