package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/pkg/reslice"
	"dynreslice/pkg/trace"
)

func newEstimateCmd(a *app) *cobra.Command {
	var (
		stack stackFlags
		paths pathFlags
		opts  resliceFlags
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print the size and footprint of a reslice without computing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			vol, err := stack.load()
			if err != nil {
				return err
			}
			p, err := paths.path()
			if err != nil {
				return err
			}
			cfg, err := opts.config(cmd, a.prefs, vol.Calibration)
			if err != nil {
				return err
			}
			if err := reslice.Validate(vol, p); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Estimated output size: %d MB\n", reslice.EstimateMB(vol, p, cfg))

			cal := reslice.OutputCalibration(vol.Calibration, p, cfg)
			fmt.Fprintf(w, "Output voxel size: %.4g x %.4g x %.4g %s\n",
				cal.PixelWidth, cal.PixelHeight, cal.PixelDepth, cal.Unit)

			var corners [4]r2.Vec
			count := cfg.SweepSteps
			switch p.Kind {
			case trace.SegmentKind:
				corners = reslice.Footprint(p, cfg.OutputSpacing, count, vol.Calibration)
			case trace.RectangleKind:
				var seg trace.Path
				var offset r2.Vec
				seg, offset, count = reslice.RectangleSweep(vol, p, cfg)
				a, b := seg.Endpoints()
				shift := r2.Scale(float64(count), offset)
				corners = [4]r2.Vec{a, b, r2.Add(b, shift), r2.Add(a, shift)}
			default:
				return nil
			}

			fmt.Fprintf(w, "Footprint of %d slice(s):", count)
			for _, c := range corners {
				fmt.Fprintf(w, " (%.1f, %.1f)", c.X, c.Y)
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	stack.register(cmd)
	paths.register(cmd)
	opts.register(cmd)

	return cmd
}
