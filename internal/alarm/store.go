package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shabbatd/internal/kv"
	appLog "shabbatd/internal/log"
	"shabbatd/internal/model"
)

// Key is the storage key of the alarm preference.
const Key = "shabbatAlarm"

// ErrMalformed marks a stored preference that failed validation.
var ErrMalformed = errors.New("alarm: malformed config")

// ConfigStore persists the single alarm preference. It does not validate
// offsets or sound references.
type ConfigStore struct {
	kv kv.Store
}

func NewConfigStore(store kv.Store) *ConfigStore {
	return &ConfigStore{kv: store}
}

// Save replaces the stored preference with (offsetMinutes, soundID).
func (s *ConfigStore) Save(ctx context.Context, offsetMinutes int, soundID string) error {
	data, err := json.Marshal(model.AlarmConfig{OffsetMinutes: offsetMinutes, SoundID: soundID})
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("alarm save: %w", err)
	}
	return nil
}

// Load returns the stored preference. Missing, unreadable and malformed
// entries all report false.
func (s *ConfigStore) Load(ctx context.Context) (model.AlarmConfig, bool) {
	raw, found, err := s.kv.Get(ctx, Key)
	if err != nil {
		appLog.Error("alarm config read failed", err, "key", Key)
		return model.AlarmConfig{}, false
	}
	if !found {
		return model.AlarmConfig{}, false
	}
	cfg, err := decodeConfig(raw)
	if err != nil {
		appLog.Error("alarm config malformed; ignoring", err, "key", Key)
		return model.AlarmConfig{}, false
	}
	return cfg, true
}

func decodeConfig(raw []byte) (model.AlarmConfig, error) {
	var r struct {
		Time  *json.Number `json:"time"`
		Sound *string      `json:"sound"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.AlarmConfig{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Time == nil {
		return model.AlarmConfig{}, fmt.Errorf("%w: missing time", ErrMalformed)
	}
	minutes, err := r.Time.Int64()
	if err != nil {
		return model.AlarmConfig{}, fmt.Errorf("%w: time: %v", ErrMalformed, err)
	}
	if r.Sound == nil || *r.Sound == "" {
		return model.AlarmConfig{}, fmt.Errorf("%w: missing sound", ErrMalformed)
	}
	return model.AlarmConfig{OffsetMinutes: int(minutes), SoundID: *r.Sound}, nil
}
