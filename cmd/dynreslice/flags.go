package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/stackio"
	"dynreslice/pkg/trace"
)

// stackFlags selects the input stack and its calibration
type stackFlags struct {
	input       string
	pixelWidth  float64
	pixelHeight float64
	pixelDepth  float64
	unit        string
	workers     int
}

func (f *stackFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Directory containing the image stack")
	cmd.Flags().Float64Var(&f.pixelWidth, "pixel-width", 1, "Physical pixel width")
	cmd.Flags().Float64Var(&f.pixelHeight, "pixel-height", 1, "Physical pixel height")
	cmd.Flags().Float64Var(&f.pixelDepth, "pixel-depth", 1, "Physical distance between planes")
	cmd.Flags().StringVar(&f.unit, "unit", "pixel", "Name of the physical unit")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Files decoded concurrently (0 uses all CPUs)")
	_ = cmd.MarkFlagRequired("input")
}

func (f *stackFlags) load() (*models.Volume, error) {
	return stackio.Load(f.input, stackio.Options{
		Calibration: models.Calibration{
			PixelWidth:  f.pixelWidth,
			PixelHeight: f.pixelHeight,
			PixelDepth:  f.pixelDepth,
			Unit:        f.unit,
		},
		Workers: f.workers,
	})
}

// pathFlags selects the path to reslice along; exactly one must be given
type pathFlags struct {
	line     string
	polyline string
	freehand string
	rect     string
	full     bool
}

func (f *pathFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.line, "line", "", "Straight line as x1,y1,x2,y2")
	cmd.Flags().StringVar(&f.polyline, "polyline", "", "Polyline as x,y;x,y;...")
	cmd.Flags().StringVar(&f.freehand, "freehand", "", "Freehand curve as x,y;x,y;...")
	cmd.Flags().StringVar(&f.rect, "rect", "", "Rectangle as x,y,width,height")
	cmd.Flags().BoolVar(&f.full, "full", false, "Sweep the whole frame")
	cmd.MarkFlagsMutuallyExclusive("line", "polyline", "freehand", "rect", "full")
	cmd.MarkFlagsOneRequired("line", "polyline", "freehand", "rect", "full")
}

func (f *pathFlags) path() (trace.Path, error) {
	switch {
	case f.line != "":
		v, err := parseNumbers(f.line, 4)
		if err != nil {
			return trace.Path{}, fmt.Errorf("--line: %w", err)
		}
		return trace.Segment(r2.Vec{X: v[0], Y: v[1]}, r2.Vec{X: v[2], Y: v[3]}), nil
	case f.polyline != "":
		pts, err := parsePoints(f.polyline)
		if err != nil {
			return trace.Path{}, fmt.Errorf("--polyline: %w", err)
		}
		return trace.Polyline(pts...), nil
	case f.freehand != "":
		pts, err := parsePoints(f.freehand)
		if err != nil {
			return trace.Path{}, fmt.Errorf("--freehand: %w", err)
		}
		return trace.Freehand(pts...), nil
	case f.rect != "":
		v, err := parseNumbers(f.rect, 4)
		if err != nil {
			return trace.Path{}, fmt.Errorf("--rect: %w", err)
		}
		return trace.Rectangle(r2.Vec{X: v[0], Y: v[1]}, r2.Vec{X: v[0] + v[2], Y: v[1] + v[3]}), nil
	default:
		return trace.Rectangle(r2.Vec{}, r2.Vec{}), nil
	}
}

// resliceFlags override the remembered reslice options
type resliceFlags struct {
	spacing       float64
	slices        int
	flip          bool
	rotate        bool
	noInterpolate bool
	startAt       string
	maxMB         int
}

func (f *resliceFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.spacing, "spacing", 0, "Output slice spacing in calibrated units")
	cmd.Flags().IntVarP(&f.slices, "slices", "n", 1, "Number of slices swept from a line")
	cmd.Flags().BoolVar(&f.flip, "flip", false, "Traverse the planes from last to first")
	cmd.Flags().BoolVar(&f.rotate, "rotate", false, "Swap the profile and plane axes")
	cmd.Flags().BoolVar(&f.noInterpolate, "no-interpolate", false, "Ignore the calibration and keep one row per plane")
	cmd.Flags().StringVar(&f.startAt, "start-at", "Top", "Edge rectangle sweeps start from (Top, Left, Bottom, Right)")
	cmd.Flags().IntVar(&f.maxMB, "max-mb", 0, "Largest output volume in MB (0 uses the default ceiling)")
}

// config returns the remembered options with every flag given on the
// command line applied on top
func (f *resliceFlags) config(cmd *cobra.Command, prefs *config.Preferences, cal models.Calibration) (config.ResliceConfig, error) {
	cfg := prefs.Snapshot(cal)
	flags := cmd.Flags()

	if flags.Changed("spacing") {
		if f.spacing <= 0 {
			return cfg, fmt.Errorf("--spacing must be positive, got %v", f.spacing)
		}
		cfg.OutputSpacing = f.spacing
	}
	if flags.Changed("slices") {
		cfg.SweepSteps = f.slices
	}
	if flags.Changed("flip") {
		cfg.Flip = f.flip
	}
	if flags.Changed("rotate") {
		cfg.Rotate = f.rotate
	}
	if flags.Changed("no-interpolate") {
		cfg.Interpolate = !f.noInterpolate
	}
	if flags.Changed("start-at") {
		corner, err := config.ParseCorner(f.startAt)
		if err != nil {
			return cfg, err
		}
		cfg.StartAt = corner
	}
	if flags.Changed("max-mb") {
		cfg.MaxOutputBytes = int64(f.maxMB) << 20
	}
	return cfg, nil
}

// parseNumbers parses exactly n comma separated numbers
func parseNumbers(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

// parsePoints parses points written as x,y pairs separated by semicolons
func parsePoints(s string) ([]r2.Vec, error) {
	var pts []r2.Vec
	for _, pair := range strings.Split(s, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		v, err := parseNumbers(pair, 2)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", len(pts)+1, err)
		}
		pts = append(pts, r2.Vec{X: v[0], Y: v[1]})
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("need at least 2 points, got %d", len(pts))
	}
	return pts, nil
}

// outputExt maps the preferred output format to a file extension
func outputExt(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "jpg"
	default:
		return "png"
	}
}
