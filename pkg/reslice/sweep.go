package reslice

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"

	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/logging"
	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/trace"
)

// Overlay receives the segment sampled at each sweep step, for drawing
// progress feedback over the source view
type Overlay interface {
	DrawSegment(a, b r2.Vec)
}

// Sweep reslices vol along seg, then along seg translated by offset, and so
// on for steps slices. The output volume is allocated once, on the first
// step; if it does not fit in cfg.MaxOutputBytes (or the default ceiling
// when that is zero) nothing is returned.
//
// ctx is checked after every step, returning ErrCancelled when done.
func Sweep(ctx context.Context, vol *models.Volume, seg trace.Path, offset r2.Vec, steps int, cfg config.ResliceConfig, overlay Overlay) (*models.Volume, error) {
	if seg.Kind != trace.SegmentKind {
		return nil, fmt.Errorf("%w: sweeps need a segment, got %s", ErrInvalidPath, seg.Kind)
	}
	if steps <= 0 {
		return nil, fmt.Errorf("%w: %d slices requested", ErrInvalidSpacing, steps)
	}

	log := logging.Logger()
	var out *models.Volume
	for i := 0; i < steps; i++ {
		p := seg.Translate(r2.Scale(float64(i), offset))

		plane, err := Plane(vol, p, cfg)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		if overlay != nil && vol.Depth() > 1 {
			overlay.DrawSegment(p.Points[0], p.Points[1])
		}

		if out == nil {
			out, err = allocate(plane.Width, plane.Height, steps, vol.Format, cfg.MaxOutputBytes)
			if err != nil {
				return nil, err
			}
		}
		dst := out.Planes[i]
		if plane.Width != dst.Width || plane.Height != dst.Height {
			return nil, fmt.Errorf("slice %d is %dx%d, expected %dx%d", i, plane.Width, plane.Height, dst.Width, dst.Height)
		}
		copy(dst.Pix, plane.Pix)

		if err := ctx.Err(); err != nil {
			log.Debug("Sweep aborted", "step", i+1, "steps", steps)
			return nil, fmt.Errorf("%w after %d of %d slices: %v", ErrCancelled, i+1, steps, err)
		}
	}

	log.Debug("Sweep finished", "steps", steps, "width", out.Width(), "height", out.Height())
	return out, nil
}

// DefaultOutputLimit caps one output volume when neither the configuration
// nor the runtime memory limit gives a ceiling
const DefaultOutputLimit int64 = 4 << 30

// outputLimit returns the byte budget for one output volume. Zero or a
// negative limit falls back to half the runtime memory limit, or to
// DefaultOutputLimit when no runtime limit is set.
func outputLimit(limit int64) int64 {
	if limit > 0 {
		return limit
	}
	if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < math.MaxInt64 {
		return soft / 2
	}
	return DefaultOutputLimit
}

// allocate creates the output volume for a sweep in one go. The size is
// checked against the budget before anything is allocated; a failing make
// is fatal to the process and cannot be recovered.
func allocate(width, height, depth int, format models.PixelFormat, limit int64) (*models.Volume, error) {
	limit = outputLimit(limit)
	samples := float64(width) * float64(height) * float64(depth)
	bytes := samples * 8
	if bytes > float64(limit) {
		return nil, fmt.Errorf("%w: %dx%dx%d needs %.0fMB, limit is %dMB",
			ErrOutOfMemory, width, height, depth, bytes/(1<<20), limit>>20)
	}

	// One backing array keeps the allocation all-or-nothing.
	pix := make([]float64, int(samples))
	vol := &models.Volume{Planes: make([]*models.Plane, depth), Format: format}
	size := width * height
	for i := range vol.Planes {
		vol.Planes[i] = &models.Plane{Width: width, Height: height, Pix: pix[i*size : (i+1)*size : (i+1)*size]}
	}
	return vol, nil
}
