package demix

import (
	"fmt"
	"math"
)

// Default engine parameters.
const (
	DefaultMu                 = 0.01
	DefaultTrainingIterations = 5
	DefaultWindow             = 16
	DefaultDensity            = Supergaussian
)

// MaxWindow is the largest history window capacity in samples, about 21
// seconds at 48 kHz.
const MaxWindow = 1 << 20

// Option provides a way to set construction parameters of the engine.
type Option func(*Engine) error

// WithMu sets the learning rate. It must be a finite value in [0, 1].
func WithMu(mu float64) Option {
	return func(e *Engine) error {
		if math.IsNaN(mu) || mu < 0 || mu > 1 {
			return fmt.Errorf("%w: %v", ErrMu, mu)
		}
		e.mu = mu
		return nil
	}
}

// WithTrainingIterations sets the initial number of passes over the
// history window per block.
func WithTrainingIterations(n uint16) Option {
	return func(e *Engine) error {
		e.iterations = n
		return nil
	}
}

// WithDensity sets the initial score function.
func WithDensity(d Density) Option {
	return func(e *Engine) error {
		if !d.Valid() {
			return fmt.Errorf("%w: %d", ErrDensity, int(d))
		}
		e.density = d
		return nil
	}
}

// WithWindow sets the history window capacity in samples. It must be in
// [1, MaxWindow].
func WithWindow(capacity int) Option {
	return func(e *Engine) error {
		if capacity < 1 || capacity > MaxWindow {
			return fmt.Errorf("%w: %d not in [1, %d]", ErrCapacity, capacity, MaxWindow)
		}
		e.capacity = capacity
		return nil
	}
}

// WithLogger sets the logger for non real-time engine events. Nil logger
// keeps engine silent.
func WithLogger(l Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return nil
		}
		e.log = l
		return nil
	}
}
