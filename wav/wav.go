// Package wav runs a shared demixing engine over WAV files.
package wav

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/demix/metric"
	"pipelined.dev/demix/signal"
)

// pcmFormat is the WAVE_FORMAT_PCM tag of written files.
const pcmFormat = 1

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")
	// ErrInvalidFile is returned when input is not a valid wav file.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrChannelCount is returned when file channels don't match engine
	// channels.
	ErrChannelCount = errors.New("file channels don't match engine channels")
	// ErrFramesPerBuffer is returned when block size is not positive.
	ErrFramesPerBuffer = errors.New("frames per buffer must be positive")
)

// Processor processes file blocks. It's implemented by *demix.Handle.
type Processor interface {
	Channels() int
	Process(in, out signal.Float64) error
	Dropped() uint64
}

// Result describes processed file.
type Result struct {
	SampleRate int
	BitDepth   signal.BitDepth
	Frames     int64
	Blocks     int64
}

// file holds decoder, encoder and block buffers of a single run.
type file struct {
	decoder *wav.Decoder
	encoder *wav.Encoder

	numChannels int
	bitDepth    signal.BitDepth
	read        *audio.IntBuffer
	write       *audio.IntBuffer

	in, out         signal.Float64
	inView, outView signal.Float64
}

// Process reads input file in blocks of framesPerBuffer frames, runs
// every block through the processor and writes the result into output
// file with the same sample rate and bit depth. Output file is finalized
// even if processing fails. Cancelled context stops processing after the
// current block.
func Process(ctx context.Context, p Processor, inPath, outPath string, framesPerBuffer int) (result Result, err error) {
	if framesPerBuffer <= 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrFramesPerBuffer, framesPerBuffer)
	}

	inFile, err := os.Open(inPath)
	if err != nil {
		return Result{}, err
	}
	defer inFile.Close()

	decoder := wav.NewDecoder(inFile)
	if !decoder.IsValidFile() {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidFile, inPath)
	}
	bitDepth := signal.BitDepth(decoder.BitDepth)
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth32 {
		return Result{}, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	format := decoder.Format()
	if format.NumChannels != p.Channels() {
		return Result{}, fmt.Errorf("%w: file has %d, engine has %d", ErrChannelCount, format.NumChannels, p.Channels())
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return Result{}, err
	}
	encoder := wav.NewEncoder(outFile, format.SampleRate, int(bitDepth), format.NumChannels, pcmFormat)
	defer func() {
		if closeErr := encoder.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("finalize %s: %w", outPath, closeErr))
		}
		if closeErr := outFile.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	f := &file{
		decoder:     decoder,
		encoder:     encoder,
		numChannels: format.NumChannels,
		bitDepth:    bitDepth,
		read: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, framesPerBuffer*format.NumChannels),
			SourceBitDepth: int(bitDepth),
		},
		write: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: format.NumChannels,
				SampleRate:  format.SampleRate,
			},
			Data:           make([]int, framesPerBuffer*format.NumChannels),
			SourceBitDepth: int(bitDepth),
		},
		in:      signal.EmptyFloat64(format.NumChannels, framesPerBuffer),
		out:     signal.EmptyFloat64(format.NumChannels, framesPerBuffer),
		inView:  make(signal.Float64, format.NumChannels),
		outView: make(signal.Float64, format.NumChannels),
	}
	// empty write puts the header so output stays valid without data
	if err := encoder.Write(&audio.IntBuffer{Format: f.write.Format, SourceBitDepth: int(bitDepth)}); err != nil {
		return Result{}, fmt.Errorf("encode: %w", err)
	}
	result = Result{
		SampleRate: format.SampleRate,
		BitDepth:   bitDepth,
	}
	measure := metric.Meter(f, format.SampleRate)()
	dropped := p.Dropped()
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		frames, err := f.next(p)
		if err != nil {
			return result, err
		}
		if frames == 0 {
			return result, nil
		}
		result.Frames += int64(frames)
		result.Blocks++

		d := p.Dropped()
		measure(int64(frames), d != dropped)
		dropped = d
	}
}

// next processes a single block and returns number of processed frames.
// Zero frames means end of file.
func (f *file) next(p Processor) (int, error) {
	n, err := f.decoder.PCMBuffer(f.read)
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	frames := signal.InterInt{
		Data:        f.read.Data[:n],
		NumChannels: f.numChannels,
		BitDepth:    f.bitDepth,
	}.CopyTo(f.in)
	f.inView = f.in.Head(f.inView, frames)
	f.outView = f.out.Head(f.outView, frames)
	if err := p.Process(f.inView, f.outView); err != nil {
		return 0, err
	}

	f.write.Data = f.outView.AsInterInt(f.bitDepth, f.write.Data)
	if err := f.encoder.Write(f.write); err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return frames, nil
}
