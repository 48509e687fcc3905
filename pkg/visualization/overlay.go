package visualization

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r2"
)

// Overlay collects the segments of a sweep and draws them over a base image.
// It is safe to use from the reslice worker while another goroutine renders.
type Overlay struct {
	mu       sync.Mutex
	base     image.Image
	color    color.Color
	width    float64
	segments [][2]r2.Vec
	outline  []r2.Vec
}

// NewOverlay creates an overlay on top of base
func NewOverlay(base image.Image) *Overlay {
	return &Overlay{
		base:  base,
		color: color.RGBA{R: 255, G: 255, A: 255},
		width: 1,
	}
}

// DrawSegment records a segment in pixel coordinates
func (o *Overlay) DrawSegment(a, b r2.Vec) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = append(o.segments, [2]r2.Vec{a, b})
}

// SetOutline sets a closed polygon drawn in addition to the segments,
// typically a sweep footprint
func (o *Overlay) SetOutline(corners []r2.Vec) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outline = append(o.outline[:0], corners...)
}

// Reset forgets all segments
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = o.segments[:0]
}

// Len returns the number of recorded segments
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.segments)
}

// Image composes the base image with the recorded lines
func (o *Overlay) Image() *image.RGBA {
	o.mu.Lock()
	defer o.mu.Unlock()

	b := o.base.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), o.base, b.Min, draw.Src)

	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for _, s := range o.segments {
		o.line(z, s[0], s[1])
	}
	for i := range o.outline {
		o.line(z, o.outline[i], o.outline[(i+1)%len(o.outline)])
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(o.color), image.Point{})
	return dst
}

// line adds a segment of the overlay width to z as a filled quad through
// pixel centres
func (o *Overlay) line(z *vector.Rasterizer, a, b r2.Vec) {
	d := r2.Sub(b, a)
	n := r2.Norm(d)
	if n == 0 {
		return
	}
	half := r2.Scale(o.width/(2*n), r2.Vec{X: -d.Y, Y: d.X})
	c := r2.Vec{X: 0.5, Y: 0.5}
	a, b = r2.Add(a, c), r2.Add(b, c)

	p0, p1 := r2.Add(a, half), r2.Add(b, half)
	p2, p3 := r2.Sub(b, half), r2.Sub(a, half)
	z.MoveTo(float32(p0.X), float32(p0.Y))
	z.LineTo(float32(p1.X), float32(p1.Y))
	z.LineTo(float32(p2.X), float32(p2.Y))
	z.LineTo(float32(p3.X), float32(p3.Y))
	z.ClosePath()
}
