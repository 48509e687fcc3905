// Package trace describes the paths a reslice is taken along and turns them
// into evenly spaced sample positions.
package trace

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// MinLength is the shortest path, in source pixels, that produces a reslice
const MinLength = 2.0

// ErrInvalidPath is returned for paths with too few points or no length
var ErrInvalidPath = errors.New("invalid path")

// Kind tags the variant held by a Path
type Kind int

const (
	SegmentKind Kind = iota
	PolylineKind
	FreehandKind
	RectangleKind
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case SegmentKind:
		return "segment"
	case PolylineKind:
		return "polyline"
	case FreehandKind:
		return "freehand"
	case RectangleKind:
		return "rectangle"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Path is a value snapshot of a user drawn path.
//
// A segment holds its two endpoints, a rectangle its min and max corners,
// and polylines and freehand curves their vertices in drawing order.
type Path struct {
	Kind   Kind
	Points []r2.Vec
}

// Segment returns a straight path from p1 to p2
func Segment(p1, p2 r2.Vec) Path {
	return Path{Kind: SegmentKind, Points: []r2.Vec{p1, p2}}
}

// Polyline returns a path through the given vertices
func Polyline(points ...r2.Vec) Path {
	return Path{Kind: PolylineKind, Points: append([]r2.Vec(nil), points...)}
}

// Freehand returns a hand drawn path through the given vertices. It is
// smoothed once before sampling.
func Freehand(points ...r2.Vec) Path {
	return Path{Kind: FreehandKind, Points: append([]r2.Vec(nil), points...)}
}

// Rectangle returns an axis aligned rectangle. An empty rectangle stands
// for the full frame of the volume.
func Rectangle(min, max r2.Vec) Path {
	return Path{Kind: RectangleKind, Points: []r2.Vec{min, max}}
}

// Irregular reports whether the path is a polyline or freehand curve
func (p Path) Irregular() bool {
	return p.Kind == PolylineKind || p.Kind == FreehandKind
}

// Endpoints returns the first and last vertex
func (p Path) Endpoints() (r2.Vec, r2.Vec) {
	if len(p.Points) == 0 {
		return r2.Vec{}, r2.Vec{}
	}
	return p.Points[0], p.Points[len(p.Points)-1]
}

// Vertices returns the points the path is sampled through, smoothed for
// freehand curves.
func (p Path) Vertices() []r2.Vec {
	if p.Kind == FreehandKind {
		return Smooth(p.Points)
	}
	return append([]r2.Vec(nil), p.Points...)
}

// Length returns the arc length of the path. For a rectangle it returns the
// length of its perimeter.
func (p Path) Length() float64 {
	if p.Kind == RectangleKind {
		if len(p.Points) < 2 {
			return 0
		}
		d := r2.Sub(p.Points[1], p.Points[0])
		return 2 * (math.Abs(d.X) + math.Abs(d.Y))
	}
	pts := p.Vertices()
	var total float64
	for i := 0; i+1 < len(pts); i++ {
		total += r2.Norm(r2.Sub(pts[i+1], pts[i]))
	}
	return total
}

// Translate returns a copy of the path moved by off
func (p Path) Translate(off r2.Vec) Path {
	q := Path{Kind: p.Kind, Points: make([]r2.Vec, len(p.Points))}
	for i, pt := range p.Points {
		q.Points[i] = r2.Add(pt, off)
	}
	return q
}

// AxisAligned reports whether p is a segment with integral endpoints lying
// on one row or one column. Such segments are read without interpolation.
func (p Path) AxisAligned() bool {
	if p.Kind != SegmentKind || len(p.Points) != 2 {
		return false
	}
	a, b := p.Points[0], p.Points[1]
	if !integral(a.X) || !integral(a.Y) || !integral(b.X) || !integral(b.Y) {
		return false
	}
	if a == b {
		return false
	}
	return a.X == b.X || a.Y == b.Y
}

// Horizontal reports whether p is a segment with constant y
func (p Path) Horizontal() bool {
	return p.Kind == SegmentKind && len(p.Points) == 2 && p.Points[0].Y == p.Points[1].Y
}

// Vertical reports whether p is a segment with constant x
func (p Path) Vertical() bool {
	return p.Kind == SegmentKind && len(p.Points) == 2 && p.Points[0].X == p.Points[1].X
}

// Smooth replaces every interior vertex by the mean of itself and its two
// neighbours. Endpoints are kept.
func Smooth(points []r2.Vec) []r2.Vec {
	out := append([]r2.Vec(nil), points...)
	for i := 1; i < len(points)-1; i++ {
		sum := r2.Add(r2.Add(points[i-1], points[i]), points[i+1])
		out[i] = r2.Scale(1.0/3.0, sum)
	}
	return out
}

func integral(v float64) bool {
	return v == math.Trunc(v)
}
