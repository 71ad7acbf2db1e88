// Package config loads demix settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pipelined.dev/demix"
)

// Config contains all demix settings.
type Config struct {
	// Engine contains construction parameters of the demixing engine.
	Engine Engine `yaml:"engine"`

	// Audio contains device stream settings.
	Audio Audio `yaml:"audio"`

	// Control contains settings of the HTTP control surface.
	Control Control `yaml:"control"`

	// Log contains logging settings.
	Log Log `yaml:"log"`
}

// Engine configures the demixing engine. All values are fixed for the
// engine lifetime, except TrainingIterations and Density which are only
// initial values.
type Engine struct {
	Channels           int           `yaml:"channels"`
	TrainingIterations uint16        `yaml:"training_iterations"`
	Mu                 float64       `yaml:"mu"`
	Window             int           `yaml:"window"`
	Density            demix.Density `yaml:"density"`
}

// Audio configures the device stream.
type Audio struct {
	SampleRate      float64 `yaml:"sample_rate"`
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	// InputDevice and OutputDevice are device indices, -1 selects the
	// default device.
	InputDevice  int `yaml:"input_device"`
	OutputDevice int `yaml:"output_device"`
}

// Control configures the HTTP control surface.
type Control struct {
	// Listen is the address to serve on. Empty value disables the server.
	Listen string `yaml:"listen"`
}

// Log configures logging.
type Log struct {
	// Level is a logrus level name.
	Level string `yaml:"level"`
}

// ErrInvalid is returned when configuration values are out of range.
var ErrInvalid = errors.New("invalid config")

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Engine: Engine{
			Channels:           3,
			TrainingIterations: demix.DefaultTrainingIterations,
			Mu:                 demix.DefaultMu,
			Window:             demix.DefaultWindow,
			Density:            demix.DefaultDensity,
		},
		Audio: Audio{
			SampleRate:      48000,
			FramesPerBuffer: 256,
			InputDevice:     -1,
			OutputDevice:    -1,
		},
		Control: Control{
			Listen: "127.0.0.1:8921",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the config file at path on top of defaults and validates
// the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data on top of defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that engine can be created and stream can be opened
// with this config.
func (c Config) Validate() error {
	if _, err := demix.New(c.Engine.Channels, c.Engine.Options()...); err != nil {
		return err
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %v", ErrInvalid, c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: frames per buffer %d", ErrInvalid, c.Audio.FramesPerBuffer)
	}
	return nil
}

// Options returns engine options for this config.
func (e Engine) Options() []demix.Option {
	return []demix.Option{
		demix.WithMu(e.Mu),
		demix.WithTrainingIterations(e.TrainingIterations),
		demix.WithWindow(e.Window),
		demix.WithDensity(e.Density),
	}
}

// New creates an engine with this config.
func (e Engine) New(l demix.Logger) (*demix.Engine, error) {
	return demix.New(e.Channels, append(e.Options(), demix.WithLogger(l))...)
}

// Marshal encodes config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
