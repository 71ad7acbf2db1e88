package demix

import (
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"gonum.org/v1/gonum/mat"

	"pipelined.dev/demix/signal"
)

// Handle shares a single engine between the real-time audio role and the
// control role.
//
// The real-time role calls Process, which never waits for the engine: if
// the control role holds it, the block is passed through unchanged and
// counted as dropped. All other methods belong to the control role, they
// block until the engine is available and only hold it for field access.
type Handle struct {
	id       string
	channels int

	mu      sync.Mutex
	engine  *Engine
	dropped atomic.Uint64
	log     Logger
}

// State is a snapshot of engine parameters and counters.
type State struct {
	Channels           int     `json:"channels"`
	Enabled            bool    `json:"enabled"`
	Density            Density `json:"density"`
	TrainingIterations uint16  `json:"training_iterations"`
	Mu                 float64 `json:"mu"`
	Dropped            uint64  `json:"dropped"`
	Diverged           uint64  `json:"diverged"`
}

// NewHandle wraps the engine. The engine must not be used directly after
// this call.
func NewHandle(e *Engine) *Handle {
	h := &Handle{
		id:       xid.New().String(),
		channels: e.channels,
		engine:   e,
		log:      e.log,
	}
	return h
}

// ID returns unique handle id.
func (h *Handle) ID() string {
	return h.id
}

// Process runs the engine over a single block. It doesn't block: when
// the engine is busy, input is copied to output and the block is counted
// as dropped.
func (h *Handle) Process(in, out signal.Float64) error {
	if !h.mu.TryLock() {
		if _, err := blockSize(h.channels, in, out); err != nil {
			return err
		}
		passThrough(in, out)
		h.dropped.Add(1)
		return nil
	}
	defer h.mu.Unlock()
	return h.engine.Process(in, out)
}

// Dropped returns number of blocks passed through due to contention.
func (h *Handle) Dropped() uint64 {
	return h.dropped.Load()
}

// Channels returns number of channels. It's fixed for the handle
// lifetime and doesn't need the engine lock.
func (h *Handle) Channels() int {
	return h.channels
}

// SetEnabled enables or disables the engine.
func (h *Handle) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.engine.SetEnabled(enabled)
	h.mu.Unlock()
	h.log.Info("demix ", h.id, " enabled: ", enabled)
}

// Enabled returns true if engine is enabled.
func (h *Handle) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Enabled()
}

// SetDensity selects score function. Invalid values are ignored.
func (h *Handle) SetDensity(d Density) {
	h.mu.Lock()
	h.engine.SetDensity(d)
	h.mu.Unlock()
	h.log.Info("demix ", h.id, " density: ", d)
}

// Density returns current score function.
func (h *Handle) Density() Density {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Density()
}

// SetTrainingIterations sets number of training passes per block.
func (h *Handle) SetTrainingIterations(n uint16) {
	h.mu.Lock()
	h.engine.SetTrainingIterations(n)
	h.mu.Unlock()
	h.log.Info("demix ", h.id, " training iterations: ", n)
}

// TrainingIterations returns number of training passes per block.
func (h *Handle) TrainingIterations() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.TrainingIterations()
}

// Mu returns the learning rate.
func (h *Handle) Mu() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Mu()
}

// Diverged returns number of discarded non-finite updates.
func (h *Handle) Diverged() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engine.Diverged()
}

// Levels returns peaks of the latest processed block.
func (h *Handle) Levels() Levels {
	l := Levels{
		Input:  make([]float64, h.channels),
		Output: make([]float64, h.channels),
	}
	h.mu.Lock()
	copy(l.Input, h.engine.inPeaks)
	copy(l.Output, h.engine.outPeaks)
	h.mu.Unlock()
	return l
}

// Matrix returns a copy of the demixing matrix.
func (h *Handle) Matrix() *mat.Dense {
	m := mat.NewDense(h.channels, h.channels, nil)
	h.mu.Lock()
	m.Copy(h.engine.w)
	h.mu.Unlock()
	return m
}

// State returns engine parameters and counters read under a single lock.
func (h *Handle) State() State {
	h.mu.Lock()
	s := State{
		Channels:           h.channels,
		Enabled:            h.engine.enabled,
		Density:            h.engine.density,
		TrainingIterations: h.engine.iterations,
		Mu:                 h.engine.mu,
		Diverged:           h.engine.diverged,
	}
	h.mu.Unlock()
	s.Dropped = h.dropped.Load()
	return s
}

// Reset drops trained state of the engine.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.engine.Reset()
	h.mu.Unlock()
	h.log.Info("demix ", h.id, " reset")
}
