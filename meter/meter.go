// Package meter smooths block peaks for level display. A peak is held
// and then decays every time the value is read.
package meter

import "sync"

// DefaultDecay is the decay factor applied on every read.
const DefaultDecay = 0.9999

// Smoother holds the latest peak and decays it on every read.
type Smoother struct {
	decay float64
	value float64
}

// NewSmoother returns smoother with provided decay factor.
func NewSmoother(decay float64) Smoother {
	return Smoother{decay: decay}
}

// Peak raises held value if peak is larger.
func (s *Smoother) Peak(peak float64) {
	if s.value < peak {
		s.value = peak
	}
}

// Next returns held value and decays it.
func (s *Smoother) Next() float64 {
	v := s.value
	s.value *= s.decay
	return v
}

// Bank smooths input and output levels of every channel. It's safe for
// concurrent use.
type Bank struct {
	mu     sync.Mutex
	input  []Smoother
	output []Smoother
}

// NewBank returns a bank for numChannels channels.
func NewBank(numChannels int, decay float64) *Bank {
	b := &Bank{
		input:  make([]Smoother, numChannels),
		output: make([]Smoother, numChannels),
	}
	for i := 0; i < numChannels; i++ {
		b.input[i] = NewSmoother(decay)
		b.output[i] = NewSmoother(decay)
	}
	return b
}

// Peak feeds block peaks into the bank. Extra values are ignored.
func (b *Bank) Peak(input, output []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < len(input) && i < len(b.input); i++ {
		b.input[i].Peak(input[i])
	}
	for i := 0; i < len(output) && i < len(b.output); i++ {
		b.output[i].Peak(output[i])
	}
}

// Next returns smoothed levels of every channel.
func (b *Bank) Next() (input, output []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	input = make([]float64, len(b.input))
	output = make([]float64, len(b.output))
	for i := range b.input {
		input[i] = b.input[i].Next()
		output[i] = b.output[i].Next()
	}
	return input, output
}
