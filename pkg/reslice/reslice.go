package reslice

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/logging"
	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/trace"
)

// Validate checks that p can be resliced through vol
func Validate(vol *models.Volume, p trace.Path) error {
	if vol == nil {
		return fmt.Errorf("no volume")
	}
	if err := vol.Validate(); err != nil {
		return err
	}
	if p.Kind != trace.RectangleKind {
		if vol.Depth() < 2 {
			return ErrStackRequired
		}
		if len(p.Points) < 2 {
			return fmt.Errorf("%w: %d points", ErrInvalidPath, len(p.Points))
		}
		if l := p.Length(); l < trace.MinLength {
			return fmt.Errorf("%w: length %.2f is below %.0f", ErrInvalidPath, l, trace.MinLength)
		}
	}
	return nil
}

// Reslice computes the full reslice of vol along p.
//
// Polylines and freehand curves produce a single image. Segments are swept
// sideways for cfg.SweepSteps slices spaced cfg.OutputSpacing apart, and
// rectangles are swept from the cfg.StartAt edge to the opposite edge.
// The returned volume carries the output calibration.
func Reslice(ctx context.Context, vol *models.Volume, p trace.Path, cfg config.ResliceConfig, overlay Overlay) (*models.Volume, error) {
	if err := Validate(vol, p); err != nil {
		return nil, err
	}

	start := time.Now()
	var out *models.Volume
	switch {
	case p.Irregular():
		plane, err := Plane(vol, p, cfg)
		if err != nil {
			return nil, err
		}
		out = &models.Volume{Planes: []*models.Plane{plane}, Format: vol.Format}

	case p.Kind == trace.SegmentKind:
		spacing := cfg.SpacingPixels(vol.Calibration)
		offset := perpendicular(p.Points[0], p.Points[1], spacing)
		var err error
		out, err = Sweep(ctx, vol, p, offset, cfg.SweepSteps, cfg, overlay)
		if err != nil {
			return nil, err
		}

	case p.Kind == trace.RectangleKind:
		seg, offset, steps := RectangleSweep(vol, p, cfg)
		var err error
		out, err = Sweep(ctx, vol, seg, offset, steps, cfg, overlay)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unsupported path kind %s", ErrInvalidPath, p.Kind)
	}

	out.Calibration = OutputCalibration(vol.Calibration, p, cfg)
	logging.Logger().Debug("Reslice computed",
		"path", p.Kind.String(),
		"width", out.Width(),
		"height", out.Height(),
		"slices", out.Depth(),
		"elapsed", time.Since(start))
	return out, nil
}

// RectangleSweep returns the starting segment, the offset between slices and
// the number of slices for a rectangle sweep. The corners may be given in
// any order; an empty rectangle covers the whole frame.
func RectangleSweep(vol *models.Volume, p trace.Path, cfg config.ResliceConfig) (trace.Path, r2.Vec, int) {
	x, y := 0.0, 0.0
	w, h := float64(vol.Width()), float64(vol.Height())
	if len(p.Points) == 2 {
		a, b := p.Points[0], p.Points[1]
		lo := r2.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)}
		hi := r2.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)}
		if hi.X > lo.X && hi.Y > lo.Y {
			x, y, w, h = lo.X, lo.Y, hi.X-lo.X, hi.Y-lo.Y
		}
	}

	s := cfg.SpacingPixels(vol.Calibration)
	switch cfg.StartAt {
	case config.Left:
		return trace.Segment(r2.Vec{X: x, Y: y}, r2.Vec{X: x, Y: y + h}), r2.Vec{X: s}, int(w / s)
	case config.Bottom:
		return trace.Segment(r2.Vec{X: x, Y: y + h - 1}, r2.Vec{X: x + w, Y: y + h - 1}), r2.Vec{Y: -s}, int(h / s)
	case config.Right:
		return trace.Segment(r2.Vec{X: x + w - 1, Y: y}, r2.Vec{X: x + w - 1, Y: y + h}), r2.Vec{X: -s}, int(w / s)
	default:
		return trace.Segment(r2.Vec{X: x, Y: y}, r2.Vec{X: x + w, Y: y}), r2.Vec{Y: s}, int(h / s)
	}
}
