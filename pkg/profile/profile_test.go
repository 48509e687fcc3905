package profile

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/models"
)

// createTestPlane fills a plane with a value that is unique per pixel
func createTestPlane(width, height int) *models.Plane {
	p := models.NewPlane(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p.Set(x, y, float64((x*7+y*13)%251))
		}
	}
	return p
}

func TestOrthoHorizontal(t *testing.T) {
	p := createTestPlane(100, 100)
	data := Ortho(p, 10, 50, 90, 50)

	if len(data) != 80 {
		t.Fatalf("Expected 80 samples, got %d", len(data))
	}
	for i, v := range data {
		if v != p.At(10+i, 50) {
			t.Errorf("Sample %d: expected %f, got %f", i, p.At(10+i, 50), v)
		}
	}
}

func TestOrthoVerticalReversed(t *testing.T) {
	p := createTestPlane(20, 20)
	data := Ortho(p, 5, 15, 5, 5)

	if len(data) != 10 {
		t.Fatalf("Expected 10 samples, got %d", len(data))
	}
	for i, v := range data {
		if v != p.At(5, 15-i) {
			t.Errorf("Sample %d: expected %f, got %f", i, p.At(5, 15-i), v)
		}
	}
}

func TestLineMatchesOrthoOnGrid(t *testing.T) {
	p := createTestPlane(64, 48)
	segments := [][4]int{
		{0, 0, 63, 0},
		{10, 47, 50, 47},
		{3, 2, 3, 40},
		{60, 30, 5, 30},
		{7, 45, 7, 1},
	}

	for _, s := range segments {
		ortho := Ortho(p, s[0], s[1], s[2], s[3])
		line := Line(p, models.Integer8,
			r2.Vec{X: float64(s[0]), Y: float64(s[1])},
			r2.Vec{X: float64(s[2]), Y: float64(s[3])})

		if len(ortho) != len(line) {
			t.Fatalf("Segment %v: ortho has %d samples, line has %d", s, len(ortho), len(line))
		}
		for i := range ortho {
			if ortho[i] != line[i] {
				t.Errorf("Segment %v sample %d: ortho %f, line %f", s, i, ortho[i], line[i])
			}
		}
	}
}

func TestLineLength(t *testing.T) {
	p := createTestPlane(100, 100)
	data := Line(p, models.Float, r2.Vec{X: 10, Y: 10}, r2.Vec{X: 60, Y: 60})

	if len(data) != 71 {
		t.Errorf("Expected 71 samples, got %d", len(data))
	}
}

func TestInterpolateScalar(t *testing.T) {
	p := models.NewPlane(2, 2)
	p.Set(0, 0, 0)
	p.Set(1, 0, 10)
	p.Set(0, 1, 20)
	p.Set(1, 1, 30)

	tests := []struct {
		x, y, want float64
	}{
		{0, 0, 0},
		{1, 0, 10},
		{0.5, 0, 5},
		{0, 0.5, 10},
		{0.5, 0.5, 15},
		{0.25, 0.75, 17.5},
		{5, 5, 0},
		{-2, 0, 0},
	}

	for _, tt := range tests {
		got := Interpolate(p, models.Float, tt.x, tt.y)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Interpolate(%v,%v): expected %f, got %f", tt.x, tt.y, tt.want, got)
		}
	}
}

func TestInterpolateRGB(t *testing.T) {
	p := models.NewPlane(2, 1)
	p.Set(0, 0, models.PackRGB(0, 100, 200))
	p.Set(1, 0, models.PackRGB(100, 200, 0))

	got := Interpolate(p, models.PackedColor, 0.5, 0)
	r, g, b := models.UnpackRGB(got)
	if r != 50 || g != 150 || b != 100 {
		t.Errorf("Expected (50,150,100), got (%d,%d,%d)", r, g, b)
	}

	if uint32(got)&0xff000000 != 0 {
		t.Errorf("Expected unused byte to be zero, got %#x", uint32(got))
	}
}

func TestAlongDoesNotMutatePlane(t *testing.T) {
	p := createTestPlane(16, 16)
	before := p.Clone()

	Along(p, models.Integer16, []r2.Vec{{X: 1.5, Y: 2.25}, {X: 14.9, Y: 3}, {X: 0, Y: 15}})

	for i := range p.Pix {
		if p.Pix[i] != before.Pix[i] {
			t.Fatalf("Plane modified at index %d", i)
		}
	}
}
