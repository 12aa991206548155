package audio

import (
	"fmt"

	appLog "shabbatd/internal/log"
)

// LogBackend only logs what would be played. It is the default on hosts
// without audio hardware.
type LogBackend struct {
	catalog Catalog
}

func NewLogBackend(catalog Catalog) *LogBackend {
	return &LogBackend{catalog: catalog}
}

func (b *LogBackend) Load(ref string) (Handle, error) {
	if _, err := b.catalog.lookup(ref); err != nil {
		return nil, fmt.Errorf("%w: %q", err, ref)
	}
	return &logHandle{ref: ref}, nil
}

type logHandle struct {
	ref      string
	unloaded bool
}

func (h *logHandle) Play() error {
	if h.unloaded {
		return ErrUnloaded
	}
	appLog.Info("sound played", "sound", h.ref)
	return nil
}

func (h *logHandle) Stop() error { return nil }

func (h *logHandle) Unload() error {
	h.unloaded = true
	return nil
}
