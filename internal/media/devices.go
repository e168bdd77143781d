// Package media provides the audio contexts, microphone capture and gapless
// scheduled playback on miniaudio devices.
package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/live"
)

// Devices opens audio devices on a shared miniaudio context
type Devices struct {
	ctx    *malgo.AllocatedContext
	camera live.FrameSource
	logger zerolog.Logger
}

// NewDevices initializes the audio backend. camera may be nil to disable vision.
func NewDevices(camera live.FrameSource, logger zerolog.Logger) (*Devices, error) {
	logger = logger.With().Str("component", "media").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug().Str("backend", "miniaudio").Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	return &Devices{ctx: ctx, camera: camera, logger: logger}, nil
}

// Close releases the audio backend
func (d *Devices) Close() error {
	err := d.ctx.Uninit()
	d.ctx.Free()
	return err
}

// Check reports whether a capture and a playback device are present
func (d *Devices) Check(ctx context.Context) error {
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := d.ctx.Devices(kind)
		if err != nil {
			return fmt.Errorf("failed to enumerate audio devices: %w", err)
		}
		if len(infos) == 0 {
			name := "playback"
			if kind == malgo.Capture {
				name = "capture"
			}
			return fmt.Errorf("no %s device available", name)
		}
	}
	return nil
}

// OpenInput creates the microphone-side context
func (d *Devices) OpenInput(sampleRate int) (live.InputContext, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("input sample rate must be positive, got %d", sampleRate)
	}
	return newInput(sampleRate, d.logger), nil
}

// OpenOutput starts a playback device that renders scheduled buffers
func (d *Devices) OpenOutput(sampleRate int) (live.OutputContext, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("output sample rate must be positive, got %d", sampleRate)
	}
	out := &Output{mixer: NewMixer(sampleRate)}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(sampleRate / 50) // 20ms
	cfg.Periods = 3

	device, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{Data: out.render})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	out.device = device

	d.logger.Debug().Int("sample_rate", sampleRate).Msg("Playback device started")
	return out, nil
}

// Acquire opens the microphone at the input context's rate
func (d *Devices) Acquire(ctx context.Context, input live.InputContext) (live.Capture, error) {
	in, ok := input.(*Input)
	if !ok {
		return nil, fmt.Errorf("unsupported input context type %T", input)
	}

	c := &Capture{frames: d.camera, rate: in.rate}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(in.rate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16)
	device, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(input) < n {
				return
			}
			c.deliver(input[:n])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}
	c.device = device

	d.logger.Debug().
		Int("sample_rate", in.rate).
		Bool("vision", d.camera != nil).
		Msg("Capture acquired")
	return c, nil
}

// Output is the playback-side audio context
type Output struct {
	device *malgo.Device
	mixer  *Mixer

	closeOnce sync.Once
	scratch   []float32
}

// CurrentTime returns the playback clock in seconds
func (o *Output) CurrentTime() float64 {
	return o.mixer.CurrentTime()
}

// Schedule starts buf at the given clock time
func (o *Output) Schedule(buf *audio.Buffer, at float64, onEnded func()) (live.PlaybackSource, error) {
	return o.mixer.Schedule(buf, at, onEnded)
}

// Close stops the device and drops everything still scheduled
func (o *Output) Close() error {
	o.closeOnce.Do(func() {
		if o.device != nil {
			o.device.Uninit()
		}
		o.mixer.StopAll()
	})
	return nil
}

// render is the device data callback. It runs on the audio thread.
func (o *Output) render(output, _ []byte, frameCount uint32) {
	n := int(frameCount)
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	samples := o.scratch[:n]
	o.mixer.Render(samples)
	copy(output, audio.EncodeFrame(samples, o.mixer.rate).Data)
}
