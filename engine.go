package demix

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"pipelined.dev/demix/signal"
)

// OutputGain is applied to every separated sample.
const OutputGain = 3.0

// Logger is a global interface for demix loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

// Engine adapts a square demixing matrix W with a natural-gradient rule
// trained over a bounded history of recent samples, and applies W to every
// processed block.
//
// Engine is not safe for concurrent use. Use Handle to share it between
// the real-time audio callback and control code.
type Engine struct {
	channels   int
	capacity   int
	mu         float64
	iterations uint16
	density    Density
	enabled    bool

	w      *mat.Dense
	window *Window

	// scratch space, allocated once
	x, y, g     *mat.VecDense
	u, uw, next *mat.Dense

	inPeaks  []float64
	outPeaks []float64
	diverged uint64

	log Logger
}

// Levels holds per-channel peak magnitudes of the latest processed block.
type Levels struct {
	Input  []float64
	Output []float64
}

// New creates an enabled engine for numChannels channels. W starts as
// identity and the history window is empty.
func New(numChannels int, options ...Option) (*Engine, error) {
	if numChannels < MinChannels || numChannels > MaxChannels {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrChannelCount, numChannels, MinChannels, MaxChannels)
	}
	e := &Engine{
		channels:   numChannels,
		capacity:   DefaultWindow,
		mu:         DefaultMu,
		iterations: DefaultTrainingIterations,
		density:    DefaultDensity,
		enabled:    true,
		log:        defaultLogger,
	}
	var errs optionErrors
	for _, option := range options {
		if err := option(e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errs.ret(); err != nil {
		return nil, err
	}

	e.w = identity(numChannels)
	e.window = NewWindow(numChannels, e.capacity)
	e.x = mat.NewVecDense(numChannels, nil)
	e.y = mat.NewVecDense(numChannels, nil)
	e.g = mat.NewVecDense(numChannels, nil)
	e.u = mat.NewDense(numChannels, numChannels, nil)
	e.uw = mat.NewDense(numChannels, numChannels, nil)
	e.next = mat.NewDense(numChannels, numChannels, nil)
	e.inPeaks = make([]float64, numChannels)
	e.outPeaks = make([]float64, numChannels)

	e.log.Debug(fmt.Sprintf("new engine channels: %d mu: %v iterations: %d density: %v window: %d",
		e.channels, e.mu, e.iterations, e.density, e.capacity))
	return e, nil
}

// Process handles a single block. in and out must have Channels() buffers
// of equal length, they may be the same buffers.
//
// Disabled engine copies input to output and leaves its state untouched.
// Enabled engine pushes the block into the history window, runs the
// configured number of training passes over the window and writes the
// separated block scaled by OutputGain.
func (e *Engine) Process(in, out signal.Float64) error {
	frames, err := blockSize(e.channels, in, out)
	if err != nil {
		return err
	}
	in.Peaks(e.inPeaks)
	if !e.enabled {
		passThrough(in, out)
		copy(e.outPeaks, e.inPeaks)
		return nil
	}

	x := e.x.RawVector().Data
	for i := 0; i < frames; i++ {
		for ch := range in {
			x[ch] = in[ch][i]
		}
		e.window.Push(x)
	}

	for n := uint16(0); n < e.iterations; n++ {
		for _, v := range e.window.All() {
			e.adapt(v)
		}
	}

	e.synthesize(in, out, frames)
	out.Peaks(e.outPeaks)
	return nil
}

// adapt applies a single natural-gradient step for sample vector v:
//
//	y = W·x, U = I + φ(y)·yᵗ, W = (1-mu)·W + mu·U·W
//
// Vectors with zero-magnitude y are skipped. Non-finite results are
// discarded.
func (e *Engine) adapt(v []float64) {
	copy(e.x.RawVector().Data, v)
	e.y.MulVec(e.w, e.x)
	y := e.y.RawVector().Data
	if floats.Norm(y, 2) == 0 {
		return
	}
	e.density.Apply(e.g.RawVector().Data, y)

	e.u.Outer(1, e.g, e.y)
	for i := 0; i < e.channels; i++ {
		e.u.Set(i, i, e.u.At(i, i)+1)
	}
	e.uw.Mul(e.u, e.w)

	next := e.next.RawMatrix().Data
	floats.ScaleTo(next, 1-e.mu, e.w.RawMatrix().Data)
	floats.AddScaled(next, e.mu, e.uw.RawMatrix().Data)
	if !finite(next) {
		e.diverged++
		return
	}
	e.w.Copy(e.next)
}

func (e *Engine) synthesize(in, out signal.Float64, frames int) {
	x := e.x.RawVector().Data
	y := e.y.RawVector().Data
	for i := 0; i < frames; i++ {
		for ch := range in {
			x[ch] = in[ch][i]
		}
		e.y.MulVec(e.w, e.x)
		for ch := range out {
			out[ch][i] = y[ch]
		}
	}
	for ch := range out {
		vecmath.ScaleBlockInPlace(out[ch], OutputGain)
	}
}

// SetEnabled switches adaptation and synthesis on and off.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled = enabled
}

// Enabled returns true if engine adapts and separates blocks.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// SetDensity selects score function. Invalid densities are ignored.
func (e *Engine) SetDensity(d Density) {
	if d.Valid() {
		e.density = d
	}
}

// Density returns current score function.
func (e *Engine) Density() Density {
	return e.density
}

// SetTrainingIterations sets number of passes over history window per
// block.
func (e *Engine) SetTrainingIterations(n uint16) {
	e.iterations = n
}

// TrainingIterations returns number of passes over history window per
// block.
func (e *Engine) TrainingIterations() uint16 {
	return e.iterations
}

// Channels returns number of channels.
func (e *Engine) Channels() int {
	return e.channels
}

// Mu returns learning rate.
func (e *Engine) Mu() float64 {
	return e.mu
}

// Window returns history window capacity.
func (e *Engine) Window() int {
	return e.capacity
}

// Diverged returns number of discarded non-finite updates.
func (e *Engine) Diverged() uint64 {
	return e.diverged
}

// Matrix returns a copy of the demixing matrix.
func (e *Engine) Matrix() *mat.Dense {
	return mat.DenseCopyOf(e.w)
}

// Levels returns a copy of the latest block peaks.
func (e *Engine) Levels() Levels {
	return Levels{
		Input:  append([]float64(nil), e.inPeaks...),
		Output: append([]float64(nil), e.outPeaks...),
	}
}

// Reset drops trained state: W becomes identity and history is emptied.
func (e *Engine) Reset() {
	e.w.Copy(identity(e.channels))
	e.window.Reset()
	for i := range e.inPeaks {
		e.inPeaks[i] = 0
		e.outPeaks[i] = 0
	}
	e.log.Debug("engine reset")
}

// blockSize validates block buffers and returns number of frames.
func blockSize(channels int, in, out signal.Float64) (int, error) {
	if len(in) != channels || len(out) != channels {
		return 0, &ErrorShape{
			Channels:       channels,
			InputChannels:  len(in),
			OutputChannels: len(out),
		}
	}
	frames := len(in[0])
	for ch := range in {
		if len(in[ch]) != frames || len(out[ch]) != frames {
			return 0, &ErrorShape{
				Channels:       channels,
				InputChannels:  len(in),
				OutputChannels: len(out),
				Ragged:         true,
			}
		}
	}
	return frames, nil
}

func passThrough(in, out signal.Float64) {
	for ch := range in {
		copy(out[ch], in[ch])
	}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func finite(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type silentLogger struct{}

func (silentLogger) Debug(args ...interface{}) {}

func (silentLogger) Info(args ...interface{}) {}

var defaultLogger silentLogger
