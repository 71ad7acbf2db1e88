package portaudio

import (
	"errors"
	"strconv"
	"testing"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/demix"
	"pipelined.dev/demix/metric"
	"pipelined.dev/demix/mock"
)

type mockStream struct {
	started, stopped, closed bool
	stopErr, closeErr        error
}

func (m *mockStream) Start() error {
	m.started = true
	return nil
}

func (m *mockStream) Stop() error {
	m.stopped = true
	return m.stopErr
}

func (m *mockStream) Close() error {
	m.closed = true
	return m.closeErr
}

func deviceBuffers(channels, frames int) (in, out [][]float32) {
	in = make([][]float32, channels)
	out = make([][]float32, channels)
	for ch := range in {
		in[ch] = make([]float32, frames)
		out[ch] = make([]float32, frames)
		for i := range in[ch] {
			in[ch][i] = float32(ch+1) * float32(i%4-2) / 8
		}
	}
	return in, out
}

func counter(t *testing.T, name string) int {
	t.Helper()
	v, ok := metric.GetAll()["portaudio.Stream"][name]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	assert.Nil(t, err)
	return n
}

func TestProcessPassThrough(t *testing.T) {
	e, err := demix.New(2)
	assert.Nil(t, err)
	h := demix.NewHandle(e)
	h.SetEnabled(false)

	s := newStream(h, 8, 48000)
	in, out := deviceBuffers(2, 8)
	s.process(in, out)
	assert.Equal(t, in, out)
}

func TestProcessClip(t *testing.T) {
	e, err := demix.New(1, demix.WithMu(0))
	assert.Nil(t, err)
	s := newStream(demix.NewHandle(e), 4, 48000)

	in := [][]float32{{0.5, -0.5, 0.1, 0}}
	out := [][]float32{make([]float32, 4)}
	s.process(in, out)
	assert.Equal(t, []float32{1, -1, float32(0.1 * demix.OutputGain), 0}, out[0])
}

func TestProcessGain(t *testing.T) {
	tests := []struct {
		gain     float64
		expected []float32
	}{
		{gain: 0, expected: []float32{0.5, -0.25, 0.125, 0}},
		{gain: 2, expected: []float32{1, -0.5, 0.25, 0}},
		{gain: 4, expected: []float32{1, -1, 0.5, 0}},
	}

	for _, test := range tests {
		s := newStream(&mock.Processor{NumChannels: 1, Gain: test.gain}, 4, 48000)
		in := [][]float32{{0.5, -0.25, 0.125, 0}}
		out := [][]float32{make([]float32, 4)}
		s.process(in, out)
		assert.Equal(t, test.expected, out[0], "gain %v", test.gain)
	}
}

func TestProcessAllocs(t *testing.T) {
	for _, channels := range []int{demix.MinChannels, 3, demix.MaxChannels} {
		e, err := demix.New(channels)
		assert.Nil(t, err)
		s := newStream(demix.NewHandle(e), 256, 48000)
		s.stream = &mockStream{}
		assert.Nil(t, s.Start())

		in, out := deviceBuffers(channels, 256)
		allocs := testing.AllocsPerRun(10, func() { s.process(in, out) })
		assert.Equal(t, 0.0, allocs, "channels %d", channels)
		assert.Nil(t, s.Close())
	}
}

func TestProcessShortBlock(t *testing.T) {
	e, err := demix.New(2)
	assert.Nil(t, err)
	h := demix.NewHandle(e)
	h.SetEnabled(false)
	s := newStream(h, 8, 48000)

	in, out := deviceBuffers(2, 3)
	s.process(in, out)
	assert.Equal(t, in, out)
}

func TestProcessMismatch(t *testing.T) {
	tests := []struct {
		channels int
		frames   int
	}{
		{channels: 1, frames: 8},
		{channels: 3, frames: 8},
		{channels: 2, frames: 16},
	}

	for _, test := range tests {
		s := newStream(&mock.Processor{NumChannels: 2}, 8, 48000)
		in, out := deviceBuffers(test.channels, test.frames)
		for ch := range out {
			out[ch][0] = 1
		}
		s.process(in, out)
		for ch := range out {
			assert.Equal(t, make([]float32, test.frames), out[ch])
		}
	}
}

func TestProcessMeasure(t *testing.T) {
	p := &mock.Processor{NumChannels: 1, Busy: true}
	s := newStream(p, 4, 48000)
	s.stream = &mockStream{}
	assert.Nil(t, s.Start())

	blocks := counter(t, metric.BlockCounter)
	samples := counter(t, metric.SampleCounter)
	dropped := counter(t, metric.DroppedCounter)

	in, out := deviceBuffers(1, 4)
	s.process(in, out)
	s.process(in, out)

	assert.Equal(t, in, out)
	assert.Equal(t, blocks+2, counter(t, metric.BlockCounter))
	assert.Equal(t, samples+8, counter(t, metric.SampleCounter))
	assert.Equal(t, dropped+2, counter(t, metric.DroppedCounter))
}

func TestStartClose(t *testing.T) {
	errStop := errors.New("stop")
	errClose := errors.New("close")
	tests := []struct {
		stream *mockStream
		errs   []error
	}{
		{
			stream: &mockStream{},
		},
		{
			stream: &mockStream{stopErr: errStop},
			errs:   []error{errStop},
		},
		{
			stream: &mockStream{stopErr: errStop, closeErr: errClose},
			errs:   []error{errStop, errClose},
		},
	}

	for _, test := range tests {
		s := newStream(&mock.Processor{NumChannels: 1}, 4, 48000)
		s.stream = test.stream
		assert.Nil(t, s.Start())
		assert.True(t, test.stream.started)

		err := s.Close()
		assert.True(t, test.stream.stopped)
		assert.True(t, test.stream.closed)
		if len(test.errs) == 0 {
			assert.Nil(t, err)
			continue
		}
		for _, expected := range test.errs {
			assert.ErrorIs(t, err, expected)
		}
	}
}

func TestResolveDevice(t *testing.T) {
	devices := []*portaudio.DeviceInfo{{Name: "first"}, {Name: "second"}}
	fallback := &portaudio.DeviceInfo{Name: "default"}
	errNoDefault := errors.New("no default")

	tests := []struct {
		idx      int
		fallback func() (*portaudio.DeviceInfo, error)
		expected string
		err      error
	}{
		{
			idx:      1,
			expected: "second",
		},
		{
			idx:      -1,
			fallback: func() (*portaudio.DeviceInfo, error) { return fallback, nil },
			expected: "default",
		},
		{
			idx:      2,
			fallback: func() (*portaudio.DeviceInfo, error) { return fallback, nil },
			expected: "default",
		},
		{
			idx:      -1,
			fallback: func() (*portaudio.DeviceInfo, error) { return nil, errNoDefault },
			err:      errNoDefault,
		},
	}

	for _, test := range tests {
		d, err := resolveDevice(devices, test.idx, test.fallback)
		if test.err != nil {
			assert.ErrorIs(t, err, test.err)
			continue
		}
		assert.Nil(t, err)
		assert.Equal(t, test.expected, d.Name)
	}
}
