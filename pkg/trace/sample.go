package trace

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is one sample position along a path
type Point struct {
	// Pos is the position in source pixel coordinates
	Pos r2.Vec

	// Arc is the distance along the path from its first vertex
	Arc float64
}

// SampleSeries is the ordered list of sample positions along a path
type SampleSeries struct {
	Samples []Point

	// Length is the total arc length of the sampled path
	Length float64

	// SegmentCounts holds the number of samples taken on each segment
	SegmentCounts []int

	// Step is the displacement between consecutive samples of a straight
	// segment. It is zero for polylines and freehand curves.
	Step r2.Vec
}

// Len returns the number of samples
func (s SampleSeries) Len() int {
	return len(s.Samples)
}

// Positions returns the sample positions in order
func (s SampleSeries) Positions() []r2.Vec {
	pos := make([]r2.Vec, len(s.Samples))
	for i, smp := range s.Samples {
		pos[i] = smp.Pos
	}
	return pos
}

// Sample converts p into positions spaced spacing source pixels apart.
//
// Segments yield round(length/spacing) samples starting at the first
// endpoint. Polylines and freehand curves carry the distance left over at the
// end of one segment into the next, so spacing stays uniform across joints.
func Sample(p Path, spacing float64) (SampleSeries, error) {
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return SampleSeries{}, fmt.Errorf("sample spacing must be positive, got %v", spacing)
	}

	switch p.Kind {
	case SegmentKind:
		return sampleSegment(p, spacing)
	case PolylineKind, FreehandKind:
		return sampleVertices(p.Vertices(), spacing)
	default:
		return SampleSeries{}, fmt.Errorf("%w: cannot sample a %s", ErrInvalidPath, p.Kind)
	}
}

func sampleSegment(p Path, spacing float64) (SampleSeries, error) {
	if len(p.Points) != 2 {
		return SampleSeries{}, fmt.Errorf("%w: segment needs 2 points, got %d", ErrInvalidPath, len(p.Points))
	}
	d := r2.Sub(p.Points[1], p.Points[0])
	length := r2.Norm(d)
	if length < MinLength {
		return SampleSeries{}, fmt.Errorf("%w: segment length %.2f is below %.0f", ErrInvalidPath, length, MinLength)
	}

	n := int(math.Round(length / spacing))
	if n < 1 {
		n = 1
	}
	step := r2.Scale(1/float64(n), d)
	arcStep := length / float64(n)

	series := SampleSeries{
		Samples:       make([]Point, n),
		Length:        length,
		SegmentCounts: []int{n},
		Step:          step,
	}
	pos := p.Points[0]
	for i := 0; i < n; i++ {
		series.Samples[i] = Point{Pos: pos, Arc: float64(i) * arcStep}
		pos = r2.Add(pos, step)
	}
	return series, nil
}

func sampleVertices(pts []r2.Vec, spacing float64) (SampleSeries, error) {
	if len(pts) < 2 {
		return SampleSeries{}, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidPath, len(pts))
	}

	series := SampleSeries{SegmentCounts: make([]int, len(pts)-1)}

	// next is the distance from the start of the current segment to the
	// next sample; the first sample sits on the first vertex.
	next := 0.0
	distance := 0.0
	for i := 0; i+1 < len(pts); i++ {
		d := r2.Sub(pts[i+1], pts[i])
		length := r2.Norm(d)
		if length == 0 {
			continue
		}
		if next > length {
			next -= length
			distance += length
			continue
		}

		dir := r2.Scale(1/length, d)
		n := int(math.Floor((length-next)/spacing)) + 1
		for j := 0; j < n; j++ {
			t := next + float64(j)*spacing
			series.Samples = append(series.Samples, Point{
				Pos: r2.Add(pts[i], r2.Scale(t, dir)),
				Arc: distance + t,
			})
		}
		series.SegmentCounts[i] = n
		next = next + float64(n)*spacing - length
		distance += length
	}

	series.Length = distance
	if distance == 0 {
		return SampleSeries{}, fmt.Errorf("%w: path has no length", ErrInvalidPath)
	}
	return series, nil
}
