package reslice

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/trace"
)

// OutputCalibration derives the calibration of a reslice of a volume
// calibrated with src. Horizontal and vertical cuts keep the in-plane size of
// the axis they follow; oblique cuts need square pixels and otherwise fall
// back to pixel units. Rotation swaps width and height.
func OutputCalibration(src models.Calibration, p trace.Path, cfg config.ResliceConfig) models.Calibration {
	orig := src.Normalized()
	z := cfg.DepthRatio(src)
	outSpacing := cfg.SpacingPixels(src)

	horizontal, vertical := false, false
	switch {
	case p.Kind == trace.RectangleKind:
		if cfg.StartAt == config.Top || cfg.StartAt == config.Bottom {
			horizontal = true
		} else {
			vertical = true
		}
	case p.Kind == trace.SegmentKind:
		horizontal = p.Horizontal()
		vertical = p.Vertical()
	}

	cal := orig
	switch {
	case horizontal:
		cal.PixelWidth = orig.PixelWidth
		cal.PixelHeight = orig.PixelDepth / z
		cal.PixelDepth = orig.PixelHeight * outSpacing
	case vertical:
		cal.PixelWidth = orig.PixelHeight
		cal.PixelHeight = orig.PixelDepth / z
		cal.PixelDepth = orig.PixelWidth * outSpacing
	case orig.PixelHeight == orig.PixelWidth:
		cal.PixelWidth = orig.PixelDepth / z
		cal.PixelHeight = cal.PixelWidth
		cal.PixelDepth = orig.PixelWidth * outSpacing
	default:
		cal = models.UnitCalibration()
	}

	if cfg.Rotate {
		cal.PixelWidth, cal.PixelHeight = cal.PixelHeight, cal.PixelWidth
	}
	return cal
}

// Footprint returns the four corners of the region swept by count slices
// from seg, for previewing a sweep before it is computed. spacing is in
// calibrated units.
func Footprint(seg trace.Path, spacing float64, count int, cal models.Calibration) [4]r2.Vec {
	a, b := seg.Endpoints()
	cal = cal.Normalized()

	d := r2.Sub(b, a)
	nrm := r2.Norm(d) / spacing
	if nrm == 0 {
		return [4]r2.Vec{a, b, b, a}
	}
	inc := r2.Vec{
		X: -d.Y / (cal.PixelWidth * nrm),
		Y: d.X / (cal.PixelHeight * nrm),
	}
	shift := r2.Scale(float64(count), inc)
	return [4]r2.Vec{a, b, r2.Add(b, shift), r2.Add(a, shift)}
}

// EstimateMB returns the approximate size in megabytes of the reslice of
// vol along p in the volume's native sample size
func EstimateMB(vol *models.Volume, p trace.Path, cfg config.ResliceConfig) int {
	depth := float64(vol.Depth()) * cfg.DepthRatio(vol.Calibration)

	var size float64
	switch {
	case p.Kind == trace.RectangleKind:
		seg, _, steps := RectangleSweep(vol, p, cfg)
		size = seg.Length() * depth * float64(steps)
	case p.Irregular():
		size = p.Length() * depth
	default:
		size = p.Length() * depth * float64(cfg.SweepSteps)
	}

	size *= float64(vol.Format.BytesPerSample())
	return int(math.Round(size / (1 << 20)))
}
