// Package cache is the persisted, expiring store of computed Shabbat time
// records. The whole envelope expires at once; there is no per-record expiry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shabbatd/internal/kv"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

const (
	// Key is the storage key of the cached envelope.
	Key = "shabbatTimes"
	// Expiry is how long a fetched envelope stays valid.
	Expiry = 2 * 24 * time.Hour
)

// ErrMalformed marks a stored envelope that failed schema validation.
var ErrMalformed = errors.New("cache: malformed envelope")

// Store reads and writes the cached envelope through a kv.Store.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// New builds a Store. now defaults to time.Now.
func New(store kv.Store, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{kv: store, now: now}
}

// Read returns the cached envelope. Absent, unreadable and malformed entries
// all come back as (zero, false); the cause is logged, never returned.
func (s *Store) Read(ctx context.Context) (model.Envelope, bool) {
	raw, found, err := s.kv.Get(ctx, Key)
	if err != nil {
		appLog.Error("cache read failed; treating as miss", err, "key", Key)
		return model.Envelope{}, false
	}
	if !found {
		appLog.Debug("cache miss", "key", Key)
		return model.Envelope{}, false
	}

	env, err := Decode(raw)
	if err != nil {
		appLog.Error("cache entry malformed; treating as miss", err, "key", Key)
		return model.Envelope{}, false
	}
	return env, true
}

// Write replaces any previous envelope with records, stamped with the current instant.
func (s *Store) Write(ctx context.Context, records []model.TimeRecord) error {
	if records == nil {
		records = []model.TimeRecord{}
	}
	env := model.Envelope{
		Data:      records,
		Timestamp: model.NewEpochMillis(s.now()),
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	appLog.Debug("cache written", "key", Key, "records", len(records))
	return nil
}

// Clear removes the envelope so the next load takes the refresh path.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, Key)
}

// Expired reports whether env is no longer usable at now:
// now >= timestamp + Expiry.
func Expired(env model.Envelope, now time.Time) bool {
	return !now.Before(env.FetchedAt().Add(Expiry))
}

// rawEnvelope keeps "data" as a pointer so a missing field is distinguishable
// from an empty list.
type rawEnvelope struct {
	Data      *[]model.TimeRecord `json:"data"`
	Timestamp *model.EpochMillis  `json:"timestamp"`
}

// Decode parses and validates a stored envelope. Any deviation from the
// schema is reported as ErrMalformed.
func Decode(raw []byte) (model.Envelope, error) {
	var r rawEnvelope
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Data == nil {
		return model.Envelope{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if r.Timestamp == nil || *r.Timestamp <= 0 {
		return model.Envelope{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	for i, rec := range *r.Data {
		if err := rec.Validate(); err != nil {
			return model.Envelope{}, fmt.Errorf("%w: record %d: %v", ErrMalformed, i, err)
		}
	}
	return model.Envelope{Data: *r.Data, Timestamp: *r.Timestamp}, nil
}
