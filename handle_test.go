package demix

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"pipelined.dev/demix/signal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestHandle(t *testing.T, numChannels int, options ...Option) *Handle {
	t.Helper()
	e, err := New(numChannels, options...)
	assert.Nil(t, err)
	return NewHandle(e)
}

func testBlock(numChannels, size int) signal.Float64 {
	b := signal.EmptyFloat64(numChannels, size)
	for ch := range b {
		for i := range b[ch] {
			b[ch][i] = float64((ch+1)*(i%7)-3) / 10
		}
	}
	return b
}

func TestHandleContention(t *testing.T) {
	h := newTestHandle(t, 2, WithMu(0.2))
	before := h.Matrix()

	in := testBlock(2, 64)
	out := signal.EmptyFloat64(2, 64)

	// control role holds the engine
	h.mu.Lock()
	start := time.Now()
	err := h.Process(in, out)
	elapsed := time.Since(start)
	h.mu.Unlock()

	assert.Nil(t, err)
	assert.Less(t, elapsed, 10*time.Millisecond)
	assert.Equal(t, in, out)
	assert.Equal(t, uint64(1), h.Dropped())
	assert.True(t, mat.Equal(before, h.Matrix()))
	assert.Equal(t, 0, h.engine.window.Len())

	// contended call with bad shape still reports it
	h.mu.Lock()
	err = h.Process(in, signal.EmptyFloat64(1, 64))
	h.mu.Unlock()
	assert.ErrorIs(t, err, ErrBlockShape)
	assert.Equal(t, uint64(1), h.Dropped())

	// engine is processed normally once released
	assert.Nil(t, h.Process(in, out))
	assert.Equal(t, uint64(1), h.Dropped())
	assert.False(t, mat.Equal(before, h.Matrix()))
	assert.Equal(t, 16, h.engine.window.Len())
}

func TestHandleConcurrentControl(t *testing.T) {
	const (
		blocks    = 200
		blockSize = 32
		bound     = 100 * time.Millisecond
	)
	h := newTestHandle(t, 3, WithWindow(32), WithTrainingIterations(2))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		densities := Densities()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			h.SetDensity(densities[i%len(densities)])
			h.SetTrainingIterations(uint16(i % 4))
			h.SetEnabled(i%5 != 0)
			_ = h.Levels()
			_ = h.Enabled()
			_ = h.TrainingIterations()
			_ = h.Density()
		}
	}()

	in := testBlock(3, blockSize)
	out := signal.EmptyFloat64(3, blockSize)
	var longest time.Duration
	for i := 0; i < blocks; i++ {
		start := time.Now()
		assert.Nil(t, h.Process(in, out))
		if d := time.Since(start); d > longest {
			longest = d
		}
	}
	close(done)
	wg.Wait()

	assert.Less(t, longest, bound)
	assert.LessOrEqual(t, h.Dropped(), uint64(blocks))
	assert.Equal(t, uint64(0), h.Diverged())
	assert.True(t, finite(h.Matrix().RawMatrix().Data))
}

func TestHandleControl(t *testing.T) {
	h := newTestHandle(t, 4, WithMu(0.05), WithDensity(SubgaussianTanh), WithTrainingIterations(2))
	assert.NotEmpty(t, h.ID())
	assert.Equal(t, 4, h.Channels())
	assert.Equal(t, 0.05, h.Mu())
	assert.Equal(t, SubgaussianTanh, h.Density())
	assert.Equal(t, uint16(2), h.TrainingIterations())
	assert.True(t, h.Enabled())

	h.SetEnabled(false)
	h.SetDensity(Subgaussian)
	h.SetTrainingIterations(9)
	assert.False(t, h.Enabled())
	assert.Equal(t, Subgaussian, h.Density())
	assert.Equal(t, uint16(9), h.TrainingIterations())

	h.SetEnabled(true)
	in := testBlock(4, 16)
	assert.Nil(t, h.Process(in, signal.EmptyFloat64(4, 16)))
	levels := h.Levels()
	assert.Len(t, levels.Input, 4)
	assert.Len(t, levels.Output, 4)
	assert.Equal(t, 0.3, levels.Input[0])

	h.Reset()
	assert.True(t, mat.Equal(identity(4), h.Matrix()))
	assert.Equal(t, 0, h.engine.window.Len())
}

func TestHandleState(t *testing.T) {
	h := newTestHandle(t, 3, WithMu(0.02), WithDensity(Subgaussian), WithTrainingIterations(3))
	in := testBlock(3, 8)
	out := signal.EmptyFloat64(3, 8)

	h.mu.Lock()
	assert.Nil(t, h.Process(in, out))
	h.mu.Unlock()
	h.SetEnabled(false)

	assert.Equal(t, State{
		Channels:           3,
		Enabled:            false,
		Density:            Subgaussian,
		TrainingIterations: 3,
		Mu:                 0.02,
		Dropped:            1,
		Diverged:           0,
	}, h.State())

	// snapshot waits for the processing role to release the engine
	h.mu.Lock()
	states := make(chan State, 1)
	go func() {
		states <- h.State()
	}()
	select {
	case <-states:
		t.Fatal("state read while engine is held")
	case <-time.After(20 * time.Millisecond):
	}
	h.engine.SetDensity(SubgaussianTanh)
	h.mu.Unlock()
	assert.Equal(t, SubgaussianTanh, (<-states).Density)
}

func TestHandleProcessAllocs(t *testing.T) {
	const blockSize = 256
	for _, numChannels := range []int{MinChannels, 3, MaxChannels} {
		h := newTestHandle(t, numChannels)
		in := testBlock(numChannels, blockSize)
		out := signal.EmptyFloat64(numChannels, blockSize)
		process := func() {
			if err := h.Process(in, out); err != nil {
				t.Fatal(err)
			}
		}

		assert.Equal(t, 0.0, testing.AllocsPerRun(10, process), "enabled %d channels", numChannels)

		h.mu.Lock()
		assert.Equal(t, 0.0, testing.AllocsPerRun(10, process), "contended %d channels", numChannels)
		h.mu.Unlock()
		assert.Equal(t, uint64(11), h.Dropped())

		h.SetEnabled(false)
		assert.Equal(t, 0.0, testing.AllocsPerRun(10, process), "disabled %d channels", numChannels)
	}
}
