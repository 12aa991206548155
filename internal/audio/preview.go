package audio

import (
	"sync"

	appLog "shabbatd/internal/log"
)

// Previewer plays sounds while the user is choosing one. At most one preview
// is loaded at a time: the previous handle is stopped and unloaded before
// the next one is loaded.
type Previewer struct {
	backend Backend

	mu      sync.Mutex
	current Handle
}

func NewPreviewer(backend Backend) *Previewer {
	return &Previewer{backend: backend}
}

// Preview releases the current preview, then loads and plays ref.
func (p *Previewer) Preview(ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked()

	h, err := p.backend.Load(ref)
	if err != nil {
		return err
	}
	if err := h.Play(); err != nil {
		if uerr := h.Unload(); uerr != nil {
			appLog.Error("preview unload failed", uerr, "sound", ref)
		}
		return err
	}
	p.current = h
	return nil
}

// StopPreview releases the current preview, if any.
func (p *Previewer) StopPreview() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

// Active reports whether a preview handle is loaded.
func (p *Previewer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Previewer) releaseLocked() {
	if p.current == nil {
		return
	}
	if err := Release(p.current); err != nil {
		appLog.Error("preview release failed", err)
	}
	p.current = nil
}
