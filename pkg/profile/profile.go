// Package profile reads one-dimensional intensity profiles out of a single
// plane, either pixel by pixel along a row or column, or with bilinear
// interpolation along an arbitrary line or list of positions.
package profile

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/models"
)

// Ortho reads the raw samples from (x1,y1) towards (x2,y2), one whole pixel
// at a time. The end point is excluded, so the profile holds
// max(|x2-x1|, |y2-y1|) samples. The segment must be horizontal or vertical.
func Ortho(p *models.Plane, x1, y1, x2, y2 int) []float64 {
	dx := x2 - x1
	dy := y2 - y1
	n := max(abs(dx), abs(dy))
	if n == 0 {
		return nil
	}
	xinc := dx / n
	yinc := dy / n

	data := make([]float64, n)
	x, y := x1, y1
	for i := 0; i < n; i++ {
		data[i] = p.At(x, y)
		x += xinc
		y += yinc
	}
	return data
}

// Line samples round(|b-a|) interpolated values starting at a, with a step
// of (b-a)/n. The length is taken from the whole segment rather than
// accumulated step by step.
func Line(p *models.Plane, format models.PixelFormat, a, b r2.Vec) []float64 {
	d := r2.Sub(b, a)
	n := int(math.Round(r2.Norm(d)))
	if n == 0 {
		return nil
	}
	inc := r2.Scale(1/float64(n), d)

	data := make([]float64, n)
	pos := a
	for i := 0; i < n; i++ {
		data[i] = Interpolate(p, format, pos.X, pos.Y)
		pos = r2.Add(pos, inc)
	}
	return data
}

// Along samples interpolated values at each position in order
func Along(p *models.Plane, format models.PixelFormat, positions []r2.Vec) []float64 {
	data := make([]float64, len(positions))
	for i, pos := range positions {
		data[i] = Interpolate(p, format, pos.X, pos.Y)
	}
	return data
}

// Interpolate returns the bilinearly interpolated sample at (x, y). Packed
// color is interpolated channel by channel. Positions further than one pixel
// outside the plane read as 0.
func Interpolate(p *models.Plane, format models.PixelFormat, x, y float64) float64 {
	if format == models.PackedColor {
		return interpolateRGB(p, x, y)
	}
	return interpolateScalar(p, x, y)
}

func interpolateScalar(p *models.Plane, x, y float64) float64 {
	x0, y0, fx, fy, ok := cell(p, x, y)
	if !ok {
		return 0
	}
	x1, y1 := x0+1, y0+1

	ll := clampedAt(p, x0, y1)
	lr := clampedAt(p, x1, y1)
	ul := clampedAt(p, x0, y0)
	ur := clampedAt(p, x1, y0)
	return blend(ul, ur, ll, lr, fx, fy)
}

func interpolateRGB(p *models.Plane, x, y float64) float64 {
	x0, y0, fx, fy, ok := cell(p, x, y)
	if !ok {
		return 0
	}
	x1, y1 := x0+1, y0+1

	ulR, ulG, ulB := models.UnpackRGB(clampedAt(p, x0, y0))
	urR, urG, urB := models.UnpackRGB(clampedAt(p, x1, y0))
	llR, llG, llB := models.UnpackRGB(clampedAt(p, x0, y1))
	lrR, lrG, lrB := models.UnpackRGB(clampedAt(p, x1, y1))

	r := blend(float64(ulR), float64(urR), float64(llR), float64(lrR), fx, fy)
	g := blend(float64(ulG), float64(urG), float64(llG), float64(lrG), fx, fy)
	b := blend(float64(ulB), float64(urB), float64(llB), float64(lrB), fx, fy)
	return models.PackRGB(channel(r), channel(g), channel(b))
}

// cell locates the upper-left neighbour of (x, y) and the fractional offsets
func cell(p *models.Plane, x, y float64) (x0, y0 int, fx, fy float64, ok bool) {
	if x < -1 || y < -1 || x >= float64(p.Width) || y >= float64(p.Height) {
		return 0, 0, 0, 0, false
	}
	fx0 := math.Floor(x)
	fy0 := math.Floor(y)
	return int(fx0), int(fy0), x - fx0, y - fy0, true
}

func blend(ul, ur, ll, lr, fx, fy float64) float64 {
	upper := ul + fx*(ur-ul)
	lower := ll + fx*(lr-ll)
	return upper + fy*(lower-upper)
}

// clampedAt reads the sample nearest to (x, y) inside the plane
func clampedAt(p *models.Plane, x, y int) float64 {
	x = max(0, min(p.Width-1, x))
	y = max(0, min(p.Height-1, y))
	return p.Pix[y*p.Width+x]
}

func channel(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Floor(v+0.5))))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
