package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/demix"
	"pipelined.dev/demix/config"
	"pipelined.dev/demix/control"
	"pipelined.dev/demix/log"
	"pipelined.dev/demix/portaudio"
)

const reportInterval = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Demix live device input",
		Long: `Opens a duplex stream on configured devices and demixes every input
block into the output. Engine can be controlled over HTTP while running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input-device") {
				cfg.Audio.InputDevice, _ = cmd.Flags().GetInt("input-device")
			}
			if cmd.Flags().Changed("output-device") {
				cfg.Audio.OutputDevice, _ = cmd.Flags().GetInt("output-device")
			}
			logger := newLogger(cmd, cfg)
			h, err := newHandle(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLive(ctx, cfg, h, logger)
		},
	}
	cmd.Flags().Int("input-device", -1, "input device index, -1 for default")
	cmd.Flags().Int("output-device", -1, "output device index, -1 for default")
	return cmd
}

func runLive(ctx context.Context, cfg config.Config, h *demix.Handle, logger *logrus.Logger) error {
	terminate, err := portaudio.Initialize()
	if err != nil {
		return err
	}
	defer terminate()

	stream, err := portaudio.Open(h, cfg.Audio)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	log.Component(logger, "stream", h.ID()).WithFields(logrus.Fields{
		"channels":   h.Channels(),
		"sampleRate": cfg.Audio.SampleRate,
		"frames":     cfg.Audio.FramesPerBuffer,
	}).Info("stream started")

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Control.Listen != "" {
		srv := control.New(h, log.Component(logger, "control", h.ID()))
		g.Go(func() error {
			return srv.Run(ctx, cfg.Control.Listen)
		})
	}
	g.Go(func() error {
		report(ctx, h, log.Component(logger, "stream", h.ID()), reportInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return stream.Close()
	})
	err = g.Wait()
	logger.Info("stream stopped")
	return err
}

// counters are engine health counters.
type counters interface {
	Dropped() uint64
	Diverged() uint64
}

// report logs growth of dropped blocks and discarded updates until ctx
// is done.
func report(ctx context.Context, c counters, l logrus.FieldLogger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var dropped, diverged uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if d := c.Dropped(); d != dropped {
			l.WithFields(logrus.Fields{
				"dropped": d - dropped,
				"total":   d,
			}).Warn("blocks passed through while engine was busy")
			dropped = d
		}
		if d := c.Diverged(); d != diverged {
			l.WithFields(logrus.Fields{
				"diverged": d - diverged,
				"total":    d,
			}).Warn("non-finite updates discarded")
			diverged = d
		}
	}
}
