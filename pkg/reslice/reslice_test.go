package reslice

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/profile"
	"dynreslice/pkg/trace"
)

// createTestVolume fills a volume with a pattern that differs per pixel and per plane
func createTestVolume(width, height, depth int, format models.PixelFormat) *models.Volume {
	vol := models.NewVolume(width, height, depth, format)
	for z, p := range vol.Planes {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := float64((x*7 + y*13 + z*31) % 251)
				if format == models.PackedColor {
					v = models.PackRGB(uint8(v), uint8(255-int(v)), uint8((x+y)%256))
				}
				p.Set(x, y, v)
			}
		}
	}
	return vol
}

func testConfig() config.ResliceConfig {
	cfg := config.Default()
	cfg.OutputSpacing = 1.0
	cfg.SweepSteps = 1
	return cfg
}

func seg(x1, y1, x2, y2 float64) trace.Path {
	return trace.Segment(r2.Vec{X: x1, Y: y1}, r2.Vec{X: x2, Y: y2})
}

func TestResliceHorizontalSegment(t *testing.T) {
	vol := createTestVolume(100, 100, 10, models.Integer16)

	out, err := Reslice(context.Background(), vol, seg(10, 50, 90, 50), testConfig(), nil)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}

	if out.Depth() != 1 {
		t.Fatalf("Expected 1 output slice, got %d", out.Depth())
	}
	if out.Width() != 80 || out.Height() != 10 {
		t.Fatalf("Expected 80x10 output, got %dx%d", out.Width(), out.Height())
	}

	img := out.Planes[0]
	for i := 0; i < 10; i++ {
		for x := 0; x < 80; x++ {
			want := vol.Planes[i].At(10+x, 50)
			if got := img.At(x, i); got != want {
				t.Fatalf("Row %d col %d: expected %f, got %f", i, x, want, got)
			}
		}
	}
}

func TestResliceObliqueSegment(t *testing.T) {
	vol := createTestVolume(100, 100, 10, models.Integer16)
	path := seg(10, 10, 60, 60)

	out, err := Reslice(context.Background(), vol, path, testConfig(), nil)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}
	if out.Width() != 71 || out.Height() != 10 {
		t.Fatalf("Expected 71x10 output, got %dx%d", out.Width(), out.Height())
	}

	// Each row is the interpolated profile of its plane, rounded to the format.
	img := out.Planes[0]
	for i := 0; i < 10; i++ {
		line := profile.Line(vol.Planes[i], vol.Format, r2.Vec{X: 10, Y: 10}, r2.Vec{X: 60, Y: 60})
		for x, v := range line {
			if got := img.At(x, i); got != vol.Format.Clamp(v) {
				t.Fatalf("Row %d col %d: expected %f, got %f", i, x, vol.Format.Clamp(v), got)
			}
		}
	}

	cfg := testConfig()
	cfg.Flip = true
	flipped, err := Reslice(context.Background(), vol, path, cfg, nil)
	if err != nil {
		t.Fatalf("Flipped reslice failed: %v", err)
	}
	if flipped.Width() != 71 || flipped.Height() != 10 {
		t.Fatalf("Expected 71x10 flipped output, got %dx%d", flipped.Width(), flipped.Height())
	}
	for i := 0; i < 10; i++ {
		for x := 0; x < 71; x++ {
			if flipped.Planes[0].At(x, i) != img.At(x, 9-i) {
				t.Fatalf("Flip must only reverse the plane axis, mismatch at (%d,%d)", x, i)
			}
		}
	}
}

func TestFastPathMatchesInterpolated(t *testing.T) {
	vol := createTestVolume(40, 30, 5, models.Float)
	paths := []trace.Path{seg(0, 5, 39, 5), seg(20, 29, 20, 0), seg(35, 12, 2, 12)}

	for _, p := range paths {
		fast, err := Plane(vol, p, testConfig())
		if err != nil {
			t.Fatalf("Plane failed: %v", err)
		}

		a, b := p.Endpoints()
		for i, plane := range vol.Planes {
			line := profile.Line(plane, vol.Format, a, b)
			if len(line) != fast.Width {
				t.Fatalf("Path %v: general branch has %d samples, fast branch %d", p.Points, len(line), fast.Width)
			}
			for x, v := range line {
				if fast.At(x, i) != v {
					t.Errorf("Path %v plane %d sample %d: fast %f, general %f", p.Points, i, x, fast.At(x, i), v)
				}
			}
		}
	}
}

func TestResliceIdempotent(t *testing.T) {
	vol := createTestVolume(64, 64, 6, models.PackedColor)
	vol.Calibration = models.Calibration{PixelWidth: 1, PixelHeight: 1, PixelDepth: 1.7, Unit: "um"}
	path := trace.Freehand(r2.Vec{X: 3, Y: 4}, r2.Vec{X: 20, Y: 31}, r2.Vec{X: 41, Y: 12}, r2.Vec{X: 60, Y: 50})

	first, err := Reslice(context.Background(), vol, path, testConfig(), nil)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}
	second, err := Reslice(context.Background(), vol, path, testConfig(), nil)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}

	a, b := first.Planes[0], second.Planes[0]
	if a.Width != b.Width || a.Height != b.Height {
		t.Fatalf("Dimensions differ: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	for i := range a.Pix {
		if math.Float64bits(a.Pix[i]) != math.Float64bits(b.Pix[i]) {
			t.Fatalf("Outputs differ at sample %d", i)
		}
	}
}

func TestRotateRoundTrip(t *testing.T) {
	vol := createTestVolume(50, 50, 7, models.Float)
	vol.Calibration = models.Calibration{PixelWidth: 1, PixelHeight: 1, PixelDepth: 2.5, Unit: "mm"}
	paths := []trace.Path{
		seg(5, 5, 45, 30),
		trace.Polyline(r2.Vec{X: 2, Y: 2}, r2.Vec{X: 30, Y: 8}, r2.Vec{X: 10, Y: 40}),
	}

	for _, p := range paths {
		plain, err := Plane(vol, p, testConfig())
		if err != nil {
			t.Fatalf("Plane failed: %v", err)
		}

		cfg := testConfig()
		cfg.Rotate = true
		rotated, err := Plane(vol, p, cfg)
		if err != nil {
			t.Fatalf("Rotated plane failed: %v", err)
		}

		if rotated.Width != plain.Height || rotated.Height != plain.Width {
			t.Fatalf("Expected rotated %dx%d, got %dx%d", plain.Height, plain.Width, rotated.Width, rotated.Height)
		}

		back := Transpose(rotated)
		for i := range plain.Pix {
			if back.Pix[i] != plain.Pix[i] {
				t.Fatalf("Path %s: round trip differs at sample %d", p.Kind, i)
			}
		}
	}
}

func TestDepthRescale(t *testing.T) {
	vol := createTestVolume(30, 30, 4, models.Float)
	vol.Calibration = models.Calibration{PixelWidth: 1, PixelHeight: 1, PixelDepth: 2.0, Unit: "mm"}

	plane, err := Plane(vol, seg(0, 10, 20, 10), testConfig())
	if err != nil {
		t.Fatalf("Plane failed: %v", err)
	}
	if plane.Height != 8 {
		t.Fatalf("Expected 8 rows after rescaling 4 planes by 2, got %d", plane.Height)
	}

	// first and last output rows are clamped to the first and last plane
	for x := 0; x < plane.Width; x++ {
		if plane.At(x, 0) != vol.Planes[0].At(x, 10) {
			t.Errorf("Row 0 col %d: expected %f, got %f", x, vol.Planes[0].At(x, 10), plane.At(x, 0))
		}
		if plane.At(x, 7) != vol.Planes[3].At(x, 10) {
			t.Errorf("Row 7 col %d: expected %f, got %f", x, vol.Planes[3].At(x, 10), plane.At(x, 7))
		}
	}

	cfg := testConfig()
	cfg.Interpolate = false
	plain, err := Plane(vol, seg(0, 10, 20, 10), cfg)
	if err != nil {
		t.Fatalf("Plane failed: %v", err)
	}
	if plain.Height != 4 {
		t.Errorf("Expected 4 rows without interpolation, got %d", plain.Height)
	}
}

func TestResliceIrregular(t *testing.T) {
	vol := createTestVolume(60, 60, 5, models.Integer8)
	path := trace.Polyline(r2.Vec{X: 5, Y: 5}, r2.Vec{X: 35, Y: 5}, r2.Vec{X: 35, Y: 45})

	cfg := testConfig()
	cfg.SweepSteps = 4
	out, err := Reslice(context.Background(), vol, path, cfg, nil)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}

	if out.Depth() != 1 {
		t.Errorf("Expected a single image for a polyline, got %d slices", out.Depth())
	}
	if out.Width() != 71 || out.Height() != 5 {
		t.Errorf("Expected 71x5 output, got %dx%d", out.Width(), out.Height())
	}

	// the polyline follows pixel centres, so values are exact
	for i := 0; i < 5; i++ {
		if got, want := out.Planes[0].At(30, i), vol.Planes[i].At(35, 5); got != want {
			t.Errorf("Plane %d at the corner: expected %f, got %f", i, want, got)
		}
	}
}

func TestSweepSegment(t *testing.T) {
	vol := createTestVolume(100, 100, 10, models.Integer16)
	cfg := testConfig()
	cfg.SweepSteps = 3

	overlay := &recordingOverlay{}
	out, err := Reslice(context.Background(), vol, seg(10, 50, 90, 50), cfg, overlay)
	if err != nil {
		t.Fatalf("Reslice failed: %v", err)
	}

	if out.Depth() != 3 {
		t.Fatalf("Expected 3 slices, got %d", out.Depth())
	}
	// the offset is the direction rotated a quarter turn: +y for a left to right line
	for s := 0; s < 3; s++ {
		for i := 0; i < 10; i++ {
			if got, want := out.Planes[s].At(0, i), vol.Planes[i].At(10, 50+s); got != want {
				t.Errorf("Slice %d row %d: expected %f, got %f", s, i, want, got)
			}
		}
	}

	if len(overlay.segments) != 3 {
		t.Errorf("Expected 3 overlay segments, got %d", len(overlay.segments))
	}
}

func TestSweepInvalidSpacing(t *testing.T) {
	vol := createTestVolume(100, 100, 10, models.Integer16)

	cfg := testConfig()
	cfg.SweepSteps = 0
	out, err := Reslice(context.Background(), vol, seg(10, 50, 90, 50), cfg, nil)
	if !errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("Expected ErrInvalidSpacing, got %v", err)
	}
	if out != nil {
		t.Error("Expected no output")
	}

	cfg = testConfig()
	cfg.OutputSpacing = 150
	out, err = Reslice(context.Background(), vol, trace.Rectangle(r2.Vec{}, r2.Vec{}), cfg, nil)
	if !errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("Expected ErrInvalidSpacing for rectangle, got %v", err)
	}
	if out != nil {
		t.Error("Expected no output")
	}
}

func TestSweepCancelled(t *testing.T) {
	vol := createTestVolume(40, 40, 4, models.Float)
	cfg := testConfig()
	cfg.SweepSteps = 10

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Reslice(ctx, vol, seg(0, 0, 30, 0), cfg, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
	if errors.Is(err, ErrOutOfMemory) || errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("Cancellation must be distinct from other failures, got %v", err)
	}
	if out != nil {
		t.Error("Expected no partial output")
	}
}

func TestSweepOutOfMemory(t *testing.T) {
	vol := createTestVolume(40, 40, 4, models.Float)
	cfg := testConfig()
	cfg.SweepSteps = 20
	cfg.MaxOutputBytes = 1024

	out, err := Reslice(context.Background(), vol, seg(0, 0, 30, 0), cfg, nil)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Expected ErrOutOfMemory, got %v", err)
	}
	if out != nil {
		t.Error("Expected no partial output")
	}
}

func TestSweepDefaultMemoryCeiling(t *testing.T) {
	vol := createTestVolume(100, 100, 10, models.Integer8)
	cfg := testConfig()
	cfg.SweepSteps = 1 << 30
	cfg.MaxOutputBytes = 0

	out, err := Reslice(context.Background(), vol, seg(10, 50, 90, 50), cfg, nil)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Expected ErrOutOfMemory without a configured limit, got %v", err)
	}
	if out != nil {
		t.Error("Expected no partial output")
	}

	if _, err := allocate(1<<20, 1<<10, 1<<10, models.Float, 0); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Expected ErrOutOfMemory for an 8TB volume, got %v", err)
	}
	if limit := outputLimit(0); limit <= 0 {
		t.Errorf("Expected a positive default ceiling, got %d", limit)
	}
	if limit := outputLimit(4096); limit != 4096 {
		t.Errorf("Expected the configured limit to win, got %d", limit)
	}
}

func TestRectangleSweepReversedCorners(t *testing.T) {
	vol := createTestVolume(40, 30, 3, models.Integer8)
	cfg := testConfig()

	tests := []struct {
		name string
		a, b r2.Vec
	}{
		{"forward", r2.Vec{X: 5, Y: 4}, r2.Vec{X: 25, Y: 14}},
		{"backward", r2.Vec{X: 25, Y: 14}, r2.Vec{X: 5, Y: 4}},
		{"mixed", r2.Vec{X: 5, Y: 14}, r2.Vec{X: 25, Y: 4}},
	}

	for _, tt := range tests {
		s, offset, steps := RectangleSweep(vol, trace.Rectangle(tt.a, tt.b), cfg)
		a, b := s.Endpoints()
		if a != (r2.Vec{X: 5, Y: 4}) || b != (r2.Vec{X: 25, Y: 4}) {
			t.Errorf("%s: expected segment (5,4)-(25,4), got (%v,%v)-(%v,%v)", tt.name, a.X, a.Y, b.X, b.Y)
		}
		if offset != (r2.Vec{Y: 1}) {
			t.Errorf("%s: expected offset (0,1), got %v", tt.name, offset)
		}
		if steps != 10 {
			t.Errorf("%s: expected 10 slices, got %d", tt.name, steps)
		}
	}

	s, _, steps := RectangleSweep(vol, trace.Rectangle(r2.Vec{X: 5, Y: 4}, r2.Vec{X: 25, Y: 4}), cfg)
	if a, b := s.Endpoints(); a != (r2.Vec{}) || b != (r2.Vec{X: 40}) || steps != 30 {
		t.Errorf("Expected an empty rectangle to sweep the full frame, got (%v)-(%v) with %d slices", a, b, steps)
	}
}

func TestRectangleSweep(t *testing.T) {
	vol := createTestVolume(20, 12, 3, models.Integer8)

	tests := []struct {
		corner config.Corner
		slices int
		width  int
		first  func(z, x int) float64
	}{
		{config.Top, 12, 20, func(z, x int) float64 { return vol.Planes[z].At(x, 0) }},
		{config.Bottom, 12, 20, func(z, x int) float64 { return vol.Planes[z].At(x, 11) }},
		{config.Left, 20, 12, func(z, y int) float64 { return vol.Planes[z].At(0, y) }},
		{config.Right, 20, 12, func(z, y int) float64 { return vol.Planes[z].At(19, y) }},
	}

	for _, tt := range tests {
		cfg := testConfig()
		cfg.StartAt = tt.corner
		out, err := Reslice(context.Background(), vol, trace.Rectangle(r2.Vec{}, r2.Vec{}), cfg, nil)
		if err != nil {
			t.Fatalf("%v: Reslice failed: %v", tt.corner, err)
		}
		if out.Depth() != tt.slices || out.Width() != tt.width || out.Height() != 3 {
			t.Fatalf("%v: expected %dx3x%d, got %dx%dx%d", tt.corner, tt.width, tt.slices, out.Width(), out.Height(), out.Depth())
		}
		for z := 0; z < 3; z++ {
			for i := 0; i < tt.width; i++ {
				if got, want := out.Planes[0].At(i, z), tt.first(z, i); got != want {
					t.Fatalf("%v: first slice at (%d,%d): expected %f, got %f", tt.corner, i, z, want, got)
				}
			}
		}
	}
}

func TestValidate(t *testing.T) {
	single := createTestVolume(20, 20, 1, models.Integer8)
	if err := Validate(single, seg(0, 0, 10, 10)); !errors.Is(err, ErrStackRequired) {
		t.Errorf("Expected ErrStackRequired, got %v", err)
	}
	if err := Validate(single, trace.Rectangle(r2.Vec{}, r2.Vec{})); err != nil {
		t.Errorf("Expected rectangles on a single plane to be valid, got %v", err)
	}

	vol := createTestVolume(20, 20, 3, models.Integer8)
	if err := Validate(vol, seg(5, 5, 6, 5)); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for short segment, got %v", err)
	}
	if err := Validate(vol, trace.Polyline(r2.Vec{X: 1, Y: 1})); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath for single point, got %v", err)
	}
}

func TestPackedColorProfile(t *testing.T) {
	vol := createTestVolume(30, 30, 3, models.PackedColor)
	plane, err := Plane(vol, seg(1.5, 2.25, 25.5, 20), testConfig())
	if err != nil {
		t.Fatalf("Plane failed: %v", err)
	}
	for i, v := range plane.Pix {
		if uint32(v)&0xff000000 != 0 || v != math.Trunc(v) {
			t.Fatalf("Sample %d is not a packed color: %v", i, v)
		}
	}
}

type recordingOverlay struct {
	segments [][2]r2.Vec
}

func (o *recordingOverlay) DrawSegment(a, b r2.Vec) {
	o.segments = append(o.segments, [2]r2.Vec{a, b})
}
