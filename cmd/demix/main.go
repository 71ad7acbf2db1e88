package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/demix"
	"pipelined.dev/demix/config"
	"pipelined.dev/demix/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "demix",
		Short: "Real-time blind source separation",
		Long: `demix separates statistically independent sources from a mix of
channels. The unmixing matrix is adapted with natural gradient on every
block of audio, while parameters can be changed at runtime.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.Int("channels", 0, "number of channels to demix (1-6)")
	flags.Uint16("iterations", 0, "training passes over history window per block")
	flags.Float64("mu", 0, "learning rate in [0, 1]")
	flags.Int("window", 0, "history window length in samples")
	flags.String("density", "", "score function: supergaussian, subgaussian or subgaussian-tanh")
	flags.Float64("sample-rate", 0, "device sample rate")
	flags.Int("frames", 0, "frames per buffer")
	flags.String("listen", "", "control surface address, empty disables it")
	flags.String("log-level", "", "log level")

	rootCmd.AddCommand(
		newRunCmd(),
		newFileCmd(),
		newDevicesCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// loadConfig reads config file if it's provided and applies flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if flags.Changed("channels") {
		cfg.Engine.Channels, _ = flags.GetInt("channels")
	}
	if flags.Changed("iterations") {
		cfg.Engine.TrainingIterations, _ = flags.GetUint16("iterations")
	}
	if flags.Changed("mu") {
		cfg.Engine.Mu, _ = flags.GetFloat64("mu")
	}
	if flags.Changed("window") {
		cfg.Engine.Window, _ = flags.GetInt("window")
	}
	if flags.Changed("density") {
		name, _ := flags.GetString("density")
		d, err := demix.ParseDensity(name)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Engine.Density = d
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate, _ = flags.GetFloat64("sample-rate")
	}
	if flags.Changed("frames") {
		cfg.Audio.FramesPerBuffer, _ = flags.GetInt("frames")
	}
	if flags.Changed("listen") {
		cfg.Control.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	return cfg, cfg.Validate()
}

// newHandle creates configured engine and shares it.
func newHandle(cfg config.Config, logger *logrus.Logger) (*demix.Handle, error) {
	e, err := cfg.Engine.New(logger.WithField("component", "engine"))
	if err != nil {
		return nil, err
	}
	return demix.NewHandle(e), nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *logrus.Logger {
	l := log.GetLogger(cfg.Log.Level)
	l.SetOutput(cmd.ErrOrStderr())
	return l
}
