package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pipelined.dev/demix/portaudio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			terminate, err := portaudio.Initialize()
			if err != nil {
				return err
			}
			defer terminate()

			devices, err := portaudio.Devices()
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), devices)
			return nil
		},
	}
}

func printDevices(w io.Writer, devices []portaudio.Device) {
	for _, d := range devices {
		fmt.Fprintf(w, "%3d  %-40s  %-12s  in: %d  out: %d  %g Hz\n",
			d.ID, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
}
