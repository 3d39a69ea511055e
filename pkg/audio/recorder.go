package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

var ErrNotRecording = errors.New("audio: not recording")

// Recorder captures 16 kHz mono PCM from the default input device.
type Recorder struct {
	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	recording bool

	// bufMu guards pcm; the device callback only takes bufMu.
	bufMu sync.Mutex
	pcm   []byte
}

// NewRecorder creates an idle recorder. No device is opened until Start.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Format reports the format of the captured PCM.
func (r *Recorder) Format() Format {
	return DefaultFormat
}

// Start opens the default capture device and begins buffering. Calling
// Start while recording is a no-op.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("module", "audio").Msg(message)
	})
	if err != nil {
		return fmt.Errorf("audio: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.PeriodSizeInMilliseconds = 20
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			r.append(input)
		},
	})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("audio: init capture device: %w", err)
	}

	r.bufMu.Lock()
	r.pcm = nil
	r.bufMu.Unlock()

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("audio: start capture: %w", err)
	}

	r.ctx, r.device, r.recording = ctx, device, true
	log.Info().Str("module", "audio").Int("sample_rate", SampleRate).Msg("recording started")
	return nil
}

func (r *Recorder) append(input []byte) {
	r.bufMu.Lock()
	r.pcm = append(r.pcm, input...)
	r.bufMu.Unlock()
}

// Stop releases the device and returns everything captured since Start.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil, ErrNotRecording
	}
	device, ctx := r.device, r.ctx
	r.device, r.ctx, r.recording = nil, nil, false

	device.Uninit()
	if err := ctx.Uninit(); err != nil {
		log.Warn().Str("module", "audio").Err(err).Msg("context uninit failed")
	}
	ctx.Free()

	r.bufMu.Lock()
	pcm := r.pcm
	r.pcm = nil
	r.bufMu.Unlock()

	log.Info().Str("module", "audio").Int("bytes", len(pcm)).Msg("recording stopped")
	return pcm, nil
}

// Recording reports whether capture is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}
