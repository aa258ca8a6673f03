package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/mxm/internal/accel"
	"github.com/urfave/cli/v2"
)

func devicesCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List the devices of every available backend",
		Action: func(c *cli.Context) error {
			return listDevices(c.App.Writer, accelOptions(e.cfg), e)
		},
	}
}

func listDevices(out io.Writer, opts accel.Options, e *env) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tMEMORY\tSPACE\tMULTIPROCESSORS\tBLOCK THREADS\tELEMENTS/THREAD")

	for _, kind := range []accel.Kind{accel.KindCPUSerial, accel.KindCPUBlocks, accel.KindGPUSim} {
		backend, err := accel.NewBackend(kind, opts, e.log)
		if err != nil {
			return err
		}
		if !backend.IsAvailable() {
			fmt.Fprintf(tw, "%s\t(unavailable)\t\t\t\t\t\n", kind)
			continue
		}
		platform, err := accel.NewPlatform(backend, e.log)
		if err != nil {
			return err
		}
		devices, err := platform.Devices()
		if err != nil {
			_ = platform.Close()
			return err
		}
		for _, dev := range devices {
			props := dev.Props()
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d (max %d/dim)\t%d\n",
				dev, props.Name,
				humanize.IBytes(props.GlobalMemSizeBytes),
				props.MemorySpace,
				props.MultiProcessorCount,
				props.BlockThreadCountMax, props.BlockThreadExtentMax,
				props.ThreadElemExtentMax)
		}
		if err := platform.Close(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
