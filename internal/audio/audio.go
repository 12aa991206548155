// Package audio plays alarm and preview sounds. A Backend turns an opaque
// sound reference into a loaded Handle; callers play, stop and finally
// unload it.
package audio

import (
	"errors"

	"shabbatd/internal/config"
)

var (
	// ErrSoundNotFound is returned by Load for references missing from the catalog.
	ErrSoundNotFound = errors.New("audio: sound not found")
	// ErrUnloaded is returned when a handle is used after Unload.
	ErrUnloaded = errors.New("audio: handle unloaded")
)

// Backend loads sound resources.
type Backend interface {
	Load(ref string) (Handle, error)
}

// Handle is one loaded sound. Stop and Unload are safe to call repeatedly.
type Handle interface {
	// Play starts playback once and returns without waiting for it to finish.
	Play() error
	Stop() error
	Unload() error
}

// Catalog resolves sound references to catalog entries.
type Catalog []config.SoundConfig

func (c Catalog) lookup(ref string) (config.SoundConfig, error) {
	for _, s := range c {
		if s.ID == ref {
			return s, nil
		}
	}
	return config.SoundConfig{}, ErrSoundNotFound
}

// Release stops and unloads h, returning the first error. A nil handle is a no-op.
func Release(h Handle) error {
	if h == nil {
		return nil
	}
	return errors.Join(h.Stop(), h.Unload())
}
