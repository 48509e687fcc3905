package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dynreslice/internal/logging"
	"dynreslice/pkg/reslice"
	"dynreslice/pkg/visualization"
)

func newResliceCmd(a *app) *cobra.Command {
	var (
		stack   stackFlags
		paths   pathFlags
		opts    resliceFlags
		output  string
		prefix  string
		format  string
		overlay string
		noSave  bool
	)

	cmd := &cobra.Command{
		Use:   "reslice",
		Short: "Reslice a stack along a path and save the result",
		Example: `  # Reslice along a horizontal line
  dynreslice reslice -i ./stack --line 10,50,90,50 -o ./out

  # Sweep 20 slices, 0.5 mm apart, from an oblique line
  dynreslice reslice -i ./stack --pixel-width 0.5 --pixel-height 0.5 --pixel-depth 2 --unit mm \
      --line 10,10,80,60 -n 20 --spacing 0.5 -o ./out

  # Reslice the whole stack from the left edge
  dynreslice reslice -i ./stack --full --start-at Left -o ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Logger()

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

			log.Info("Reslicing",
				"path", p.Kind.String(),
				"spacing", cfg.OutputSpacing,
				"slices", cfg.SweepSteps,
				"estimateMB", reslice.EstimateMB(vol, p, cfg))

			var ov *visualization.Overlay
			var drawer reslice.Overlay
			if overlay != "" {
				base, err := visualization.NewViewer(vol, visualization.Window{}).Render(0)
				if err != nil {
					return err
				}
				ov = visualization.NewOverlay(base)
				drawer = ov
			}

			start := time.Now()
			out, err := reslice.Reslice(cmd.Context(), vol, p, cfg, drawer)
			if err != nil {
				return fmt.Errorf("reslice failed: %w", err)
			}
			elapsed := time.Since(start)

			if format == "" {
				format = a.prefs.Output.Format
			}
			viewer := visualization.NewViewer(out, visualization.AutoWindow(vol))
			files, err := viewer.SaveSequence(output, prefix, outputExt(format), a.prefs.Output.JPEGQuality)
			if err != nil {
				return err
			}
			if ov != nil {
				if err := visualization.SaveImage(ov.Image(), overlay, a.prefs.Output.JPEGQuality); err != nil {
					return err
				}
			}

			cal := out.Calibration
			fmt.Fprintf(cmd.OutOrStdout(), "Resliced %s in %.2fs: %dx%d, %d slice(s)\n",
				p.Kind, elapsed.Seconds(), out.Width(), out.Height(), out.Depth())
			fmt.Fprintf(cmd.OutOrStdout(), "Voxel size: %.4g x %.4g x %.4g %s\n",
				cal.PixelWidth, cal.PixelHeight, cal.PixelDepth, cal.Unit)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d file(s) to %s\n", len(files), output)

			if noSave {
				return nil
			}
			a.prefs.Remember(cfg)
			return a.savePreferences()
		},
	}

	stack.register(cmd)
	paths.register(cmd)
	opts.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "reslice", "Output directory")
	cmd.Flags().StringVar(&prefix, "prefix", "reslice", "Output file name prefix")
	cmd.Flags().StringVar(&format, "format", "", "Output format, png or jpeg (default from preferences)")
	cmd.Flags().StringVar(&overlay, "overlay", "", "Also save the first plane with the swept lines drawn on it")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not remember the options in the preferences file")

	return cmd
}
