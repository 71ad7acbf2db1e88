package demix

import "iter"

// Window is a fixed-capacity ring of multichannel sample vectors. When
// it's full, every push overwrites the oldest vector. All storage is
// allocated once in NewWindow.
type Window struct {
	data     []float64
	channels int
	capacity int
	head     int // slot of the next push
	size     int
}

// NewWindow allocates a window for capacity vectors of numChannels
// samples each.
func NewWindow(numChannels, capacity int) *Window {
	return &Window{
		data:     make([]float64, numChannels*capacity),
		channels: numChannels,
		capacity: capacity,
	}
}

// Push copies v into the window, evicting the oldest vector if the window
// is full. Only the first Channels() values of v are used.
func (w *Window) Push(v []float64) {
	copy(w.slot(w.head), v[:w.channels])
	w.head++
	if w.head == w.capacity {
		w.head = 0
	}
	if w.size < w.capacity {
		w.size++
	}
}

// Len returns number of held vectors.
func (w *Window) Len() int {
	return w.size
}

// Cap returns window capacity.
func (w *Window) Cap() int {
	return w.capacity
}

// Channels returns length of every held vector.
func (w *Window) Channels() int {
	return w.channels
}

// At returns i-th held vector, where 0 is the oldest one. The returned
// slice aliases window storage and is valid until the next Push.
func (w *Window) At(i int) []float64 {
	if i < 0 || i >= w.size {
		return nil
	}
	return w.slot(w.oldest() + i)
}

// All iterates over held vectors from the oldest to the newest. Yielded
// slices alias window storage. The sequence can be ranged multiple
// times, but must not be ranged across a Push.
func (w *Window) All() iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		start := w.oldest()
		for i := 0; i < w.size; i++ {
			if !yield(i, w.slot(start+i)) {
				return
			}
		}
	}
}

// Reset drops all held vectors.
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
}

func (w *Window) oldest() int {
	if w.size < w.capacity {
		return 0
	}
	return w.head
}

// slot returns storage of ring position i, i may exceed capacity once.
func (w *Window) slot(i int) []float64 {
	if i >= w.capacity {
		i -= w.capacity
	}
	offset := i * w.channels
	return w.data[offset : offset+w.channels : offset+w.channels]
}
