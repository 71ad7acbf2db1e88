package meter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/demix/meter"
)

func TestSmoother(t *testing.T) {
	s := meter.NewSmoother(0.5)
	assert.Equal(t, 0.0, s.Next())

	s.Peak(0.8)
	assert.Equal(t, 0.8, s.Next())
	assert.Equal(t, 0.4, s.Next())

	// smaller peak doesn't reset decaying value
	s.Peak(0.1)
	assert.Equal(t, 0.2, s.Next())

	s.Peak(1)
	assert.Equal(t, 1.0, s.Next())
}

func TestBank(t *testing.T) {
	b := meter.NewBank(2, 0.5)
	b.Peak([]float64{0.5, 1, 7}, []float64{0.25})

	input, output := b.Next()
	assert.Equal(t, []float64{0.5, 1}, input)
	assert.Equal(t, []float64{0.25, 0}, output)

	input, output = b.Next()
	assert.Equal(t, []float64{0.25, 0.5}, input)
	assert.Equal(t, []float64{0.125, 0}, output)
}
