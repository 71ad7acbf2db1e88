package demix

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MinChannels is the smallest supported channel count.
	MinChannels = 1
	// MaxChannels is the largest supported channel count.
	MaxChannels = 6
)

var (
	// ErrChannelCount is returned if engine is created with unsupported
	// number of channels.
	ErrChannelCount = errors.New("unsupported channel count")
	// ErrCapacity is returned if history window capacity is less than one.
	ErrCapacity = errors.New("invalid window capacity")
	// ErrMu is returned if learning rate is not a finite value in [0, 1].
	ErrMu = errors.New("learning rate out of range")
	// ErrDensity is returned for unknown density values.
	ErrDensity = errors.New("unknown density")
	// ErrBlockShape is returned if block buffers don't match engine
	// channels or have different lengths.
	ErrBlockShape = errors.New("block shape mismatch")
)

// ErrorShape describes a malformed block.
type ErrorShape struct {
	Channels       int
	InputChannels  int
	OutputChannels int
	// Ragged is set when channel buffers have different lengths.
	Ragged bool
}

func (e *ErrorShape) Error() string {
	if e.Ragged {
		return fmt.Sprintf("%v: channel buffers have different lengths", ErrBlockShape)
	}
	return fmt.Sprintf("%v: engine has %d channels, input %d, output %d", ErrBlockShape, e.Channels, e.InputChannels, e.OutputChannels)
}

// Is allows to match ErrorShape with ErrBlockShape.
func (e *ErrorShape) Is(err error) bool {
	return err == ErrBlockShape
}

// optionErrors wraps errors of multiple failed options.
type optionErrors []error

func (e optionErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows errors.Is to match any of the wrapped errors.
func (e optionErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e optionErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
