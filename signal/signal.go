// Package signal provides buffers used to move multichannel audio between
// transports and the demixing engine. It allows to:
//	- convert interleaved int data to non-interleaved floats and back
//	- convert device float32 buffers to float64 and back
//	- measure block peaks
package signal

import (
	"math"
	"time"

	"github.com/cwbudde/algo-vecmath"
)

// Float64 is a non-interleaved float64 signal. First dimension is
// channel, second is sample.
type Float64 [][]float64

const (
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// BitDepth contains values required for int-to-float and backward conversion.
type BitDepth int

// InterInt is an interleaved int signal.
type InterInt struct {
	Data        []int
	NumChannels int
	BitDepth
}

// scale returns the int value of full-scale float sample.
func (bitDepth BitDepth) scale() float64 {
	switch bitDepth {
	case BitDepth16:
		return math.MaxInt16
	case BitDepth32:
		return math.MaxInt32
	default:
		return 1
	}
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// EmptyFloat64 returns an empty buffer of specified dimensions.
func EmptyFloat64(numChannels int, bufferSize int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, bufferSize)
	}
	return result
}

// NumChannels returns number of channels in this sample slice.
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of samples in single block in this sample slice.
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Head returns a view of first n samples of every channel. The view
// shares memory with the buffer. dst is reused if it has enough channels.
func (floats Float64) Head(dst Float64, n int) Float64 {
	if cap(dst) < len(floats) {
		dst = make([][]float64, len(floats))
	}
	dst = dst[:len(floats)]
	for i := range floats {
		dst[i] = floats[i][:n]
	}
	return dst
}

// CopyTo deinterleaves ints into floats and returns number of frames
// written. Frames that don't fit into floats are ignored, incomplete last
// frame is padded with zeros.
func (ints InterInt) CopyTo(floats Float64) int {
	if len(ints.Data) == 0 || ints.NumChannels == 0 || floats.NumChannels() < ints.NumChannels {
		return 0
	}
	frames := int(math.Ceil(float64(len(ints.Data)) / float64(ints.NumChannels)))
	if frames > floats.Size() {
		frames = floats.Size()
	}
	scale := ints.BitDepth.scale()
	for ch := 0; ch < ints.NumChannels; ch++ {
		for i := 0; i < frames; i++ {
			pos := i*ints.NumChannels + ch
			if pos < len(ints.Data) {
				floats[ch][i] = float64(ints.Data[pos]) / scale
			} else {
				floats[ch][i] = 0
			}
		}
	}
	return frames
}

// AsInterInt interleaves floats into ints, reusing dst if it has enough
// capacity. Samples are clipped to [-1, 1] and rounded to the nearest
// int.
func (floats Float64) AsInterInt(bitDepth BitDepth, dst []int) []int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return nil
	}
	size := floats.Size() * numChannels
	if cap(dst) < size {
		dst = make([]int, size)
	}
	dst = dst[:size]

	scale := bitDepth.scale()
	for ch := range floats {
		for i, v := range floats[ch] {
			dst[i*numChannels+ch] = int(math.Round(Clip(v) * scale))
		}
	}
	return dst
}

// ReadFloat32 copies device samples into floats. Both buffers must have
// the same dimensions.
func (floats Float64) ReadFloat32(src [][]float32) {
	for ch := range src {
		dst := floats[ch]
		for i, v := range src[ch] {
			dst[i] = float64(v)
		}
	}
}

// WriteFloat32 copies floats into device samples, clipping them to
// [-1, 1]. Both buffers must have the same dimensions.
func (floats Float64) WriteFloat32(dst [][]float32) {
	for ch := range dst {
		src := floats[ch]
		for i := range dst[ch] {
			dst[ch][i] = float32(Clip(src[i]))
		}
	}
}

// Clip limits sample to [-1, 1]. NaN is replaced with silence.
func Clip(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	case v != v:
		return 0
	}
	return v
}

// Peak returns the largest absolute sample value.
func Peak(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return vecmath.MaxAbs(s)
}

// Peaks writes the peak of every channel into dst.
func (floats Float64) Peaks(dst []float64) {
	for ch := range floats {
		dst[ch] = Peak(floats[ch])
	}
}
