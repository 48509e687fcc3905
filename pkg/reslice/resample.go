// Package reslice builds orthogonal cross-sections of a volume along a path.
//
// Every plane of the volume is sampled along the path and the resulting
// profiles are stacked, one row per plane, into a 2D image. Straight
// segments and rectangles can additionally be swept sideways to produce a
// stack of such images.
package reslice

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/profile"
	"dynreslice/pkg/trace"
)

// reader extracts the profile of one plane. It is built once per path so the
// sample positions are shared by every plane.
type reader func(p *models.Plane) []float64

func newReader(format models.PixelFormat, p trace.Path) (reader, error) {
	switch {
	case p.Irregular():
		series, err := trace.Sample(p, 1.0)
		if err != nil {
			return nil, err
		}
		positions := series.Positions()
		return func(plane *models.Plane) []float64 {
			return profile.Along(plane, format, positions)
		}, nil

	case p.Kind == trace.SegmentKind && len(p.Points) == 2:
		a, b := p.Points[0], p.Points[1]
		if p.AxisAligned() {
			x1, y1, x2, y2 := int(a.X), int(a.Y), int(b.X), int(b.Y)
			return func(plane *models.Plane) []float64 {
				return profile.Ortho(plane, x1, y1, x2, y2)
			}, nil
		}
		return func(plane *models.Plane) []float64 {
			return profile.Line(plane, format, a, b)
		}, nil

	default:
		return nil, fmt.Errorf("%w: cannot read a profile along a %s", ErrInvalidPath, p.Kind)
	}
}

// Plane reslices vol along p and returns a single image with one row per
// plane (one column when cfg.Rotate is set). Planes are visited from last
// to first when cfg.Flip is set, and the plane axis is stretched by the
// depth ratio of the calibration.
//
// p must be a segment, polyline or freehand curve.
func Plane(vol *models.Volume, p trace.Path, cfg config.ResliceConfig) (*models.Plane, error) {
	read, err := newReader(vol.Format, p)
	if err != nil {
		return nil, err
	}

	acc, err := accumulate(vol, read, cfg)
	if err != nil {
		return nil, err
	}

	ratio := cfg.DepthRatio(vol.Calibration)
	if ratio != 1.0 {
		acc = rescaleDepth(acc, ratio, cfg.Rotate, vol.Format)
	}

	return denseToPlane(acc), nil
}

// accumulate writes one profile per plane into a profile × plane matrix
func accumulate(vol *models.Volume, read reader, cfg config.ResliceConfig) (*mat.Dense, error) {
	stackSize := vol.Depth()
	if stackSize == 0 {
		return nil, fmt.Errorf("volume has no planes")
	}

	var acc *mat.Dense
	var length int
	for i := 0; i < stackSize; i++ {
		idx := i
		if cfg.Flip {
			idx = stackSize - 1 - i
		}

		line := read(vol.Planes[idx])
		if i == 0 {
			length = len(line)
			if length == 0 {
				return nil, fmt.Errorf("%w: path yields an empty profile", ErrInvalidPath)
			}
			if cfg.Rotate {
				acc = mat.NewDense(length, stackSize, nil)
			} else {
				acc = mat.NewDense(stackSize, length, nil)
			}
		}
		if len(line) != length {
			return nil, fmt.Errorf("plane %d yields %d samples, expected %d", idx, len(line), length)
		}

		for j, v := range line {
			line[j] = vol.Format.Clamp(v)
		}
		if cfg.Rotate {
			acc.SetCol(i, line)
		} else {
			acc.SetRow(i, line)
		}
	}
	return acc, nil
}

// rescaleDepth resamples the plane axis of acc to round(planes × ratio)
// using linear interpolation
func rescaleDepth(acc *mat.Dense, ratio float64, rotated bool, format models.PixelFormat) *mat.Dense {
	rows, cols := acc.Dims()
	planes := rows
	if rotated {
		planes = cols
	}

	target := int(math.Round(float64(planes) * ratio))
	if target < 1 {
		target = 1
	}
	if target == planes {
		return acc
	}

	var out *mat.Dense
	if rotated {
		out = mat.NewDense(rows, target, nil)
	} else {
		out = mat.NewDense(target, cols, nil)
	}

	scale := float64(planes) / float64(target)
	for k := 0; k < target; k++ {
		src := (float64(k)+0.5)*scale - 0.5
		src = math.Max(0, math.Min(float64(planes-1), src))
		i0 := int(math.Floor(src))
		i1 := min(i0+1, planes-1)
		f := src - float64(i0)

		if rotated {
			for r := 0; r < rows; r++ {
				out.Set(r, k, lerp(acc.At(r, i0), acc.At(r, i1), f, format))
			}
		} else {
			for c := 0; c < cols; c++ {
				out.Set(k, c, lerp(acc.At(i0, c), acc.At(i1, c), f, format))
			}
		}
	}
	return out
}

func lerp(a, b, f float64, format models.PixelFormat) float64 {
	if format == models.PackedColor {
		ar, ag, ab := models.UnpackRGB(a)
		br, bg, bb := models.UnpackRGB(b)
		return models.PackRGB(
			lerpChannel(ar, br, f),
			lerpChannel(ag, bg, f),
			lerpChannel(ab, bb, f),
		)
	}
	return format.Clamp(a + f*(b-a))
}

func lerpChannel(a, b uint8, f float64) uint8 {
	v := float64(a) + f*(float64(b)-float64(a))
	return uint8(math.Max(0, math.Min(255, math.Floor(v+0.5))))
}

func denseToPlane(m *mat.Dense) *models.Plane {
	rows, cols := m.Dims()
	raw := m.RawMatrix()
	p := models.NewPlane(cols, rows)
	for r := 0; r < rows; r++ {
		copy(p.Pix[r*cols:(r+1)*cols], raw.Data[r*raw.Stride:r*raw.Stride+cols])
	}
	return p
}

// Transpose returns p with its axes swapped
func Transpose(p *models.Plane) *models.Plane {
	m := mat.NewDense(p.Height, p.Width, append([]float64(nil), p.Pix...))
	return denseToPlane(mat.DenseCopyOf(m.T()))
}

// perpendicular returns the offset between consecutive sweep slices: the
// direction of a to b rotated a quarter turn and scaled to spacing
func perpendicular(a, b r2.Vec, spacing float64) r2.Vec {
	d := r2.Sub(b, a)
	nrm := r2.Norm(d) / spacing
	return r2.Vec{X: -d.Y / nrm, Y: d.X / nrm}
}
