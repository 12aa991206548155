package audio

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	appLog "shabbatd/internal/log"
)

const (
	beepOn        = 300 * time.Millisecond
	beepOff       = 200 * time.Millisecond
	defaultBeeps  = 3
	defaultGPIOID = "GPIO18"
)

// BuzzerBackend sounds an active buzzer wired to a GPIO pin. Each catalog
// entry maps to a beep count instead of a waveform.
type BuzzerBackend struct {
	catalog Catalog
	pin     gpio.PinOut
}

// NewBuzzerBackend initializes periph and opens the named pin
// (e.g. "GPIO18"). It fails on hosts without GPIO.
func NewBuzzerBackend(catalog Catalog, pinName string) (*BuzzerBackend, error) {
	if pinName == "" {
		pinName = defaultGPIOID
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("audio: periph init: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("audio: gpio pin %q not found", pinName)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("audio: gpio pin %q: %w", pinName, err)
	}
	return newBuzzerBackend(catalog, pin), nil
}

func newBuzzerBackend(catalog Catalog, pin gpio.PinOut) *BuzzerBackend {
	return &BuzzerBackend{catalog: catalog, pin: pin}
}

func (b *BuzzerBackend) Load(ref string) (Handle, error) {
	sound, err := b.catalog.lookup(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, ref)
	}
	beeps := sound.Beeps
	if beeps <= 0 {
		beeps = defaultBeeps
	}
	return &buzzerHandle{ref: ref, pin: b.pin, beeps: beeps}, nil
}

type buzzerHandle struct {
	mu       sync.Mutex
	ref      string
	pin      gpio.PinOut
	beeps    int
	stopCh   chan struct{}
	done     chan struct{}
	unloaded bool
}

func (h *buzzerHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return ErrUnloaded
	}
	h.stopLocked()

	h.stopCh = make(chan struct{})
	h.done = make(chan struct{})
	go h.beepLoop(h.stopCh, h.done)
	return nil
}

func (h *buzzerHandle) beepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := h.pin.Out(gpio.Low); err != nil {
			appLog.Error("buzzer release failed", err, "sound", h.ref)
		}
	}()

	for i := 0; i < h.beeps; i++ {
		if err := h.pin.Out(gpio.High); err != nil {
			appLog.Error("buzzer write failed", err, "sound", h.ref)
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(beepOn):
		}
		if err := h.pin.Out(gpio.Low); err != nil {
			appLog.Error("buzzer write failed", err, "sound", h.ref)
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(beepOff):
		}
	}
}

// stopLocked cancels a running pattern and waits for the pin to be released.
func (h *buzzerHandle) stopLocked() {
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	<-h.done
	h.stopCh, h.done = nil, nil
}

func (h *buzzerHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	return nil
}

func (h *buzzerHandle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return nil
	}
	h.stopLocked()
	h.unloaded = true
	return h.pin.Out(gpio.Low)
}
