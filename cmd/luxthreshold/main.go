package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"
	"github.com/ztkent/lux-threshold-meter/internal/luxmeter"
	"github.com/ztkent/lux-threshold-meter/internal/tools"
	"github.com/ztkent/lux-threshold-meter/veml7700"
)

// Precompute VEML7700 threshold register values, e.g. for firmware tables.
type ProgramArgs struct {
	Gain            string    `short:"g" long:"gain" default:"1/8" description:"Analog gain: 2, 1, 1/4 or 1/8"`
	IntegrationTime string    `short:"i" long:"integration-time" default:"100ms" description:"Integration time: 25ms to 800ms"`
	Lux             []float32 `short:"l" long:"lux" description:"Lux trip-point, may be repeated"`
	All             bool      `short:"a" long:"all" description:"Compute every gain and integration time"`
	JSON            bool      `short:"j" long:"json" description:"Print JSON instead of a table"`
}

func main() {
	var args ProgramArgs
	if _, err := flags.Parse(&args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if err := run(args, os.Stdout); err != nil {
		tools.Logger.WithError(err).Error("luxthreshold failed")
		os.Exit(1)
	}
}

func run(args ProgramArgs, out io.Writer) error {
	luxValues := args.Lux
	if len(luxValues) == 0 {
		luxValues = luxmeter.DefaultTableLux
	}

	var thresholds []luxmeter.Threshold
	if args.All {
		thresholds = luxmeter.BuildThresholdTable(luxValues)
	} else {
		gain, err := veml7700.ParseGain(args.Gain)
		if err != nil {
			return err
		}
		it, err := veml7700.ParseIntegrationTime(args.IntegrationTime)
		if err != nil {
			return err
		}
		for _, lux := range luxValues {
			thresholds = append(thresholds, luxmeter.NewThreshold(it, gain, lux))
		}
	}

	if args.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(thresholds)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GAIN\tINTEGRATION\tLUX\tFACTOR\tCORRECTED\tRAW")
	for _, t := range thresholds {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.4f\t%t\t%d\n", t.Gain, t.IntegrationTime, t.Lux, t.Factor, t.Corrected, t.Raw)
	}
	return tw.Flush()
}
