// Package mock provides a processor for transport tests.
package mock

import (
	"sync"

	"pipelined.dev/demix/signal"
)

// Processor copies input to output and counts processed blocks and
// samples. When Busy is set, blocks are counted as dropped.
type Processor struct {
	NumChannels int
	Busy        bool
	// Gain multiplies every copied sample. Zero means unity gain.
	Gain float64

	mu       sync.Mutex
	messages int64
	samples  int64
	dropped  uint64
}

// Channels returns number of channels.
func (p *Processor) Channels() int {
	return p.NumChannels
}

// Process copies in to out.
func (p *Processor) Process(in, out signal.Float64) error {
	gain := p.Gain
	if gain == 0 {
		gain = 1
	}
	for ch := range in {
		for i, v := range in[ch] {
			out[ch][i] = v * gain
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages++
	p.samples += int64(in.Size())
	if p.Busy {
		p.dropped++
	}
	return nil
}

// Dropped returns number of blocks processed while busy.
func (p *Processor) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Count returns number of processed blocks and samples.
func (p *Processor) Count() (int64, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages, p.samples
}
