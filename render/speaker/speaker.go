// Package speaker plays a render.Mixer on the default output device.
package speaker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/odinbridge/render"
)

// ErrNotOpen is returned when starting a device that was not opened.
var ErrNotOpen = errors.New("speaker: device not open")

// Config describes the output stream.
type Config struct {
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
}

// DefaultConfig matches the engine's remote stream format: 48 kHz mono,
// 10ms buffers.
func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		Channels:        1,
		FramesPerBuffer: 480,
	}
}

// Device is a portaudio output stream whose callback is the render clock.
type Device struct {
	cfg   Config
	mixer *render.Mixer

	mu     sync.Mutex
	stream *portaudio.Stream
}

// New creates a device that pulls from mixer.
func New(mixer *render.Mixer, cfg Config) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Device{cfg: cfg, mixer: mixer}
}

// Open initializes portaudio and opens the default output stream.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(0, d.cfg.Channels, d.cfg.SampleRate, d.cfg.FramesPerBuffer, d.process)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open output stream: %w", err)
	}
	d.stream = stream

	logrus.WithFields(logrus.Fields{
		"function":    "Device.Open",
		"sample_rate": d.cfg.SampleRate,
		"channels":    d.cfg.Channels,
	}).Info("Opened output device")
	return nil
}

// process runs on the portaudio thread.
func (d *Device) process(out []float32) {
	d.mixer.Mix(out)
}

// Start begins playback.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return ErrNotOpen
	}
	return d.stream.Start()
}

// Close stops the stream and releases portaudio.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}

	var errs []error
	if err := d.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	d.stream = nil
	portaudio.Terminate()
	return errors.Join(errs...)
}
