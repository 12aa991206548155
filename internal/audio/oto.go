package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ebitengine/oto/v3"

	appLog "shabbatd/internal/log"
)

// oto allows one context per process, so it is shared by every handle.
var (
	globalCtx     *oto.Context
	globalCtxOnce sync.Once
	globalCtxErr  error
	// globalFormat is the format the context was opened with.
	globalFormat wavFormat
)

// ErrFormatMismatch is returned for a sound whose sample rate or channel
// count differs from the one the audio device was opened with.
var ErrFormatMismatch = errors.New("audio: format differs from open device")

// wavFormat holds WAV file format information
type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func initContext(format wavFormat) (*oto.Context, wavFormat, error) {
	globalCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			globalCtxErr = err
			return
		}

		// Wait for the hardware audio devices to be ready
		<-readyChan

		globalCtx = ctx
		globalFormat = format
		appLog.Info("audio context initialized", "sample_rate", format.SampleRate, "channels", format.Channels)
	})
	return globalCtx, globalFormat, globalCtxErr
}

// checkFormat rejects sounds the open context would play at the wrong pitch.
func checkFormat(device, sound wavFormat) error {
	if device.SampleRate != sound.SampleRate || device.Channels != sound.Channels {
		return fmt.Errorf("%w: device %d Hz/%d ch, sound %d Hz/%d ch", ErrFormatMismatch,
			device.SampleRate, device.Channels, sound.SampleRate, sound.Channels)
	}
	return nil
}

// OtoBackend plays catalog WAV files through the system audio device.
// The device is opened with the format of the first sound loaded; later
// sounds with another sample rate or channel count are rejected.
type OtoBackend struct {
	catalog Catalog
	readFn  func(string) ([]byte, error)
}

func NewOtoBackend(catalog Catalog) *OtoBackend {
	return &OtoBackend{catalog: catalog, readFn: os.ReadFile}
}

func (b *OtoBackend) Load(ref string) (Handle, error) {
	sound, err := b.catalog.lookup(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, ref)
	}
	data, err := b.readFn(sound.Path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %s: %w", sound.Path, err)
	}
	format, pcm, err := parseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("audio: parse %s: %w", sound.Path, err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("audio: %s: unsupported bit depth %d", sound.Path, format.BitDepth)
	}
	ctx, device, err := initContext(format)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	if err := checkFormat(device, format); err != nil {
		return nil, fmt.Errorf("%s: %w", sound.Path, err)
	}
	return &otoHandle{ref: ref, player: ctx.NewPlayer(bytes.NewReader(pcm))}, nil
}

type otoHandle struct {
	mu       sync.Mutex
	ref      string
	player   *oto.Player
	unloaded bool
}

func (h *otoHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return ErrUnloaded
	}
	// Rewind so a handle can be replayed.
	if _, err := h.player.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h.player.Play()
	appLog.Debug("audio playing", "sound", h.ref)
	return nil
}

func (h *otoHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return nil
	}
	if h.player.IsPlaying() {
		h.player.Pause()
		appLog.Debug("audio stopped", "sound", h.ref)
	}
	return nil
}

func (h *otoHandle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return nil
	}
	h.unloaded = true
	return h.player.Close()
}

// parseWAV parses a RIFF/WAVE payload and returns the format and PCM data.
func parseWAV(data []byte) (wavFormat, []byte, error) {
	var format wavFormat
	reader := bytes.NewReader(data)

	header := make([]byte, 12)
	if _, err := io.ReadFull(reader, header); err != nil {
		return format, nil, err
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return format, nil, errors.New("not a RIFF/WAVE file")
	}

	for {
		chunkID := make([]byte, 4)
		if _, err := io.ReadFull(reader, chunkID); err != nil {
			if errors.Is(err, io.EOF) {
				return format, nil, errors.New("missing data chunk")
			}
			return format, nil, err
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return format, nil, err
		}

		switch string(chunkID) {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(reader, fmtChunk); err != nil {
				return format, nil, err
			}
			if len(fmtChunk) < 16 {
				return format, nil, errors.New("short fmt chunk")
			}
			format.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			format.BitDepth = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
		case "data":
			if format.SampleRate == 0 {
				return format, nil, errors.New("data chunk before fmt chunk")
			}
			pcm := make([]byte, chunkSize)
			n, err := io.ReadFull(reader, pcm)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return format, nil, err
			}
			return format, pcm[:n], nil
		default:
			// Skip unknown chunk
			if _, err := reader.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return format, nil, err
			}
		}
	}
}
