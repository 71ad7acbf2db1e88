// Package portaudio runs a shared demixing engine on a duplex device
// stream.
package portaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/demix/config"
	"pipelined.dev/demix/metric"
	"pipelined.dev/demix/signal"
)

// Processor processes device blocks in place of the real-time role. It's
// implemented by *demix.Handle.
type Processor interface {
	Channels() int
	Process(in, out signal.Float64) error
	Dropped() uint64
}

// paStream abstracts a PortAudio stream for testing.
type paStream interface {
	Start() error
	Stop() error
	Close() error
}

// Device describes an audio device.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Stream is a duplex device stream. Every callback converts device
// samples, runs the processor and writes clipped result back to device.
// Callback doesn't allocate.
type Stream struct {
	processor Processor
	stream    paStream

	in, out         signal.Float64
	inView, outView signal.Float64
	dropped         uint64

	reset   metric.ResetFunc
	measure metric.MeasureFunc
}

// Initialize initializes PortAudio. Returned function terminates it.
func Initialize() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	return portaudio.Terminate, nil
}

// Devices lists available devices. PortAudio must be initialized.
func Devices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	result := make([]Device, 0, len(devices))
	for i, d := range devices {
		dev := Device{
			ID:                i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		result = append(result, dev)
	}
	return result, nil
}

// Open opens a duplex stream on configured devices with one channel per
// processor channel. PortAudio must be initialized.
func Open(p Processor, cfg config.Audio) (*Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	inputDev, err := resolveDevice(devices, cfg.InputDevice, portaudio.DefaultInputDevice)
	if err != nil {
		return nil, fmt.Errorf("input device: %w", err)
	}
	outputDev, err := resolveDevice(devices, cfg.OutputDevice, portaudio.DefaultOutputDevice)
	if err != nil {
		return nil, fmt.Errorf("output device: %w", err)
	}

	s := newStream(p, cfg.FramesPerBuffer, int(cfg.SampleRate))
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inputDev,
			Channels: p.Channels(),
			Latency:  inputDev.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   outputDev,
			Channels: p.Channels(),
			Latency:  outputDev.DefaultLowOutputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return nil, fmt.Errorf("open stream on %s/%s: %w", inputDev.Name, outputDev.Name, err)
	}
	s.stream = stream
	return s, nil
}

func newStream(p Processor, framesPerBuffer, sampleRate int) *Stream {
	s := &Stream{
		processor: p,
		in:        signal.EmptyFloat64(p.Channels(), framesPerBuffer),
		out:       signal.EmptyFloat64(p.Channels(), framesPerBuffer),
		inView:    make(signal.Float64, p.Channels()),
		outView:   make(signal.Float64, p.Channels()),
	}
	s.reset = metric.Meter(s, sampleRate)
	s.measure = s.reset()
	return s
}

// Start starts the stream.
func (s *Stream) Start() error {
	s.dropped = s.processor.Dropped()
	s.measure = s.reset()
	return s.stream.Start()
}

// Close stops and closes the stream.
func (s *Stream) Close() error {
	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Stream) process(in, out [][]float32) {
	frames := 0
	if len(in) > 0 {
		frames = len(in[0])
	}
	if len(in) != len(s.in) || len(out) != len(s.out) || frames > s.in.Size() {
		silence(out)
		return
	}

	inView := s.in.Head(s.inView, frames)
	outView := s.out.Head(s.outView, frames)
	inView.ReadFloat32(in)
	if err := s.processor.Process(inView, outView); err != nil {
		silence(out)
		return
	}
	outView.WriteFloat32(out)

	dropped := s.processor.Dropped()
	s.measure(int64(frames), dropped != s.dropped)
	s.dropped = dropped
}

func silence(out [][]float32) {
	for ch := range out {
		clear(out[ch])
	}
}

// resolveDevice returns the device at idx if valid, otherwise calls fallback.
func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}
