package demix

import (
	"fmt"
	"math"
)

// Density selects the score function used to drive adaptation. It encodes
// the assumed distribution of the sources.
type Density int

const (
	// Supergaussian density, φ(y) = -2·tanh(y).
	Supergaussian Density = iota
	// Subgaussian density, φ(y) = -y³.
	Subgaussian
	// SubgaussianTanh density, φ(y) = tanh(y) - y.
	SubgaussianTanh
)

var densityNames = [...]string{
	Supergaussian:   "supergaussian",
	Subgaussian:     "subgaussian",
	SubgaussianTanh: "subgaussian-tanh",
}

// Densities returns all supported densities.
func Densities() []Density {
	return []Density{Supergaussian, Subgaussian, SubgaussianTanh}
}

// Valid returns true if density is one of the supported values.
func (d Density) Valid() bool {
	return d >= Supergaussian && d <= SubgaussianTanh
}

// Score returns φ(y) for a single sample.
func (d Density) Score(y float64) float64 {
	switch d {
	case Subgaussian:
		return -y * y * y
	case SubgaussianTanh:
		return math.Tanh(y) - y
	default:
		return -2 * math.Tanh(y)
	}
}

// Apply writes φ(src[i]) to dst[i]. Slices must have equal length.
func (d Density) Apply(dst, src []float64) {
	dst = dst[:len(src)]
	switch d {
	case Subgaussian:
		for i, y := range src {
			dst[i] = -y * y * y
		}
	case SubgaussianTanh:
		for i, y := range src {
			dst[i] = math.Tanh(y) - y
		}
	default:
		for i, y := range src {
			dst[i] = -2 * math.Tanh(y)
		}
	}
}

func (d Density) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Density(%d)", int(d))
	}
	return densityNames[d]
}

// MarshalText implements encoding.TextMarshaler.
func (d Density) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrDensity, int(d))
	}
	return []byte(densityNames[d]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Density) UnmarshalText(text []byte) error {
	v, err := ParseDensity(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDensity returns density by its name.
func ParseDensity(s string) (Density, error) {
	for i, name := range densityNames {
		if name == s {
			return Density(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrDensity, s)
}
