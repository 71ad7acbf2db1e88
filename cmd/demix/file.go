package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/demix/log"
	"pipelined.dev/demix/wav"
)

func newFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <in.wav> <out.wav>",
		Short: "Demix a multichannel WAV file",
		Long: `Reads the input file in blocks of configured frames per buffer and
writes the demixed result. Input must have as many channels as the engine
and 16 or 32 bit depth.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			h, err := newHandle(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := wav.Process(ctx, h, args[0], args[1], cfg.Audio.FramesPerBuffer)
			if err != nil {
				return err
			}
			log.Component(logger, "file", h.ID()).WithFields(logrus.Fields{
				"frames":   result.Frames,
				"blocks":   result.Blocks,
				"diverged": h.Diverged(),
			}).Debug("file processed")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d Hz, %d bit\n", args[1], result.Frames, result.SampleRate, result.BitDepth)
			return nil
		},
	}
}
