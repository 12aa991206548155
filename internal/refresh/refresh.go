// Package refresh decides whether cached Shabbat times are still usable or
// must be recomputed, and publishes the upcoming record.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shabbatd/internal/cache"
	"shabbatd/internal/location"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
	"shabbatd/internal/shabbat"
	"shabbatd/internal/times"
)

// State is the outcome of the last cache check.
type State string

const (
	StateUnknown State = ""
	StateFresh   State = "fresh"
	StateStale   State = "stale"
)

// Status is a point-in-time snapshot for the API.
type Status struct {
	State     State             `json:"state"`
	Selected  *model.TimeRecord `json:"selected,omitempty"`
	LoadedAt  time.Time         `json:"loaded_at,omitzero"`
	LastError string            `json:"last_error,omitempty"`
}

// Options carries the clock and display zone. Zero values use time.Now and
// time.Local.
type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// Orchestrator owns the published selection. It is the only writer; readers
// go through Selected.
type Orchestrator struct {
	store      *cache.Store
	locator    location.Provider
	calculator times.Calculator
	loc        *time.Location
	now        func() time.Time

	loadMu sync.Mutex

	mu       sync.RWMutex
	selected model.TimeRecord
	has      bool
	state    State
	loadedAt time.Time
	lastErr  error
}

func New(store *cache.Store, locator location.Provider, calculator times.Calculator, opts Options) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:      store,
		locator:    locator,
		calculator: calculator,
		loc:        opts.Location,
		now:        opts.Now,
	}
}

// Load publishes the upcoming record, recomputing times only when the cache
// is absent or expired. On failure the previous selection stays published
// and the error is returned. There is no retry.
func (o *Orchestrator) Load(ctx context.Context) error {
	o.loadMu.Lock()
	defer o.loadMu.Unlock()

	now := o.now()
	if env, ok := o.store.Read(ctx); ok && !cache.Expired(env, now) {
		o.publish(StateFresh, env.Data, now)
		appLog.Debug("shabbat times served from cache", "records", len(env.Data), "fetched_at", env.FetchedAt())
		return nil
	}

	appLog.Info("shabbat times stale; recomputing")
	records, err := o.recompute(ctx)
	if err != nil {
		o.fail(StateStale, err)
		appLog.Error("shabbat times refresh failed", err)
		return err
	}

	o.publish(StateStale, records, now)

	// Written even when nothing upcoming was found.
	if err := o.store.Write(ctx, records); err != nil {
		o.fail(StateStale, err)
		appLog.Error("shabbat times cache write failed", err)
		return err
	}
	return nil
}

func (o *Orchestrator) recompute(ctx context.Context) ([]model.TimeRecord, error) {
	where, err := o.locator.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("locate: %w", err)
	}
	records, err := o.calculator.Calculate(ctx, where.Latitude, where.Longitude, where.City)
	if err != nil {
		return nil, fmt.Errorf("calculate: %w", err)
	}
	appLog.Info("shabbat times recomputed", "city", where.City, "records", len(records))
	return records, nil
}

func (o *Orchestrator) publish(state State, records []model.TimeRecord, now time.Time) {
	rec, ok := shabbat.SelectNext(records, now, o.loc)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.loadedAt = now
	o.lastErr = nil
	o.selected, o.has = rec, ok
	if !ok {
		appLog.Warn("no upcoming shabbat in records", "records", len(records))
	}
}

// fail records err without touching the selection.
func (o *Orchestrator) fail(state State, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
	o.lastErr = err
}

// Invalidate drops the cached times so the next Load recomputes.
func (o *Orchestrator) Invalidate(ctx context.Context) error {
	if err := o.store.Clear(ctx); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	appLog.Info("shabbat times cache invalidated")
	return nil
}

// Selected returns the published record.
func (o *Orchestrator) Selected() (model.TimeRecord, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.selected, o.has
}

func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := Status{State: o.state, LoadedAt: o.loadedAt}
	if o.has {
		rec := o.selected
		st.Selected = &rec
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	return st
}

// IsCollaboratorError reports whether err came from the location or time
// calculation collaborators rather than storage.
func IsCollaboratorError(err error) bool {
	return errors.Is(err, location.ErrUnavailable) || errors.Is(err, times.ErrCalculation)
}
