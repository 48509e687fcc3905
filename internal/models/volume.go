package models

import (
	"fmt"
	"math"
)

// PixelFormat identifies how plane samples are interpreted
type PixelFormat int

const (
	// Integer8 holds unsigned 8-bit intensities
	Integer8 PixelFormat = iota

	// Integer16 holds unsigned 16-bit intensities
	Integer16

	// Float holds floating point intensities
	Float

	// PackedColor holds 0x00RRGGBB values, one per sample
	PackedColor
)

// String returns a readable name for the format
func (f PixelFormat) String() string {
	switch f {
	case Integer8:
		return "8-bit"
	case Integer16:
		return "16-bit"
	case Float:
		return "32-bit"
	case PackedColor:
		return "RGB"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// BytesPerSample is the storage cost of one sample in the host's native layout
func (f PixelFormat) BytesPerSample() int {
	switch f {
	case Integer8:
		return 1
	case Integer16:
		return 2
	default:
		return 4
	}
}

// Clamp rounds and clamps v to the representable range of the format.
// Float and packed color values pass through unchanged.
func (f PixelFormat) Clamp(v float64) float64 {
	switch f {
	case Integer8:
		return math.Max(0, math.Min(255, math.Floor(v+0.5)))
	case Integer16:
		return math.Max(0, math.Min(65535, math.Floor(v+0.5)))
	default:
		return v
	}
}

// Calibration describes the physical size of a voxel
type Calibration struct {
	// PixelWidth is the physical width of one pixel
	PixelWidth float64 `yaml:"pixelWidth"`

	// PixelHeight is the physical height of one pixel
	PixelHeight float64 `yaml:"pixelHeight"`

	// PixelDepth is the physical distance between consecutive planes
	PixelDepth float64 `yaml:"pixelDepth"`

	// Unit is the name of the physical unit, e.g. "mm" or "pixel"
	Unit string `yaml:"unit"`
}

// UnitCalibration returns a calibration of one pixel in every direction
func UnitCalibration() Calibration {
	return Calibration{PixelWidth: 1, PixelHeight: 1, PixelDepth: 1, Unit: "pixel"}
}

// Normalized returns a copy with a positive depth and a non-zero width,
// matching how spacings are read before reslicing.
func (c Calibration) Normalized() Calibration {
	if c.PixelDepth < 0 {
		c.PixelDepth = -c.PixelDepth
	}
	if c.PixelWidth == 0 {
		c.PixelWidth = 1
	}
	if c.PixelHeight == 0 {
		c.PixelHeight = 1
	}
	if c.PixelDepth == 0 {
		c.PixelDepth = 1
	}
	if c.Unit == "" {
		c.Unit = "pixel"
	}
	return c
}

// Plane is a single 2D image of a volume stored in row-major order
type Plane struct {
	Width  int
	Height int
	Pix    []float64
}

// NewPlane allocates a zero-filled plane
func NewPlane(width, height int) *Plane {
	return &Plane{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// At returns the sample at (x, y), or 0 outside the plane
func (p *Plane) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return 0
	}
	return p.Pix[y*p.Width+x]
}

// Set stores v at (x, y); writes outside the plane are ignored
func (p *Plane) Set(x, y int, v float64) {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return
	}
	p.Pix[y*p.Width+x] = v
}

// Row returns a copy of row y
func (p *Plane) Row(y int) []float64 {
	row := make([]float64, p.Width)
	copy(row, p.Pix[y*p.Width:(y+1)*p.Width])
	return row
}

// Clone returns a deep copy of the plane
func (p *Plane) Clone() *Plane {
	c := &Plane{Width: p.Width, Height: p.Height, Pix: make([]float64, len(p.Pix))}
	copy(c.Pix, p.Pix)
	return c
}

// Volume is an ordered stack of planes sharing a pixel format and calibration
type Volume struct {
	// Planes holds the stack, index 0 first
	Planes []*Plane

	// Format is the pixel format shared by all planes
	Format PixelFormat

	// Calibration is the spatial calibration shared by all planes
	Calibration Calibration
}

// NewVolume allocates depth zero-filled planes of the given size
func NewVolume(width, height, depth int, format PixelFormat) *Volume {
	v := &Volume{
		Planes:      make([]*Plane, depth),
		Format:      format,
		Calibration: UnitCalibration(),
	}
	for i := range v.Planes {
		v.Planes[i] = NewPlane(width, height)
	}
	return v
}

// Width is the width of the planes, or 0 for an empty volume
func (v *Volume) Width() int {
	if len(v.Planes) == 0 {
		return 0
	}
	return v.Planes[0].Width
}

// Height is the height of the planes, or 0 for an empty volume
func (v *Volume) Height() int {
	if len(v.Planes) == 0 {
		return 0
	}
	return v.Planes[0].Height
}

// Depth is the number of planes
func (v *Volume) Depth() int {
	return len(v.Planes)
}

// SameGeometry reports whether o has the same dimensions and format as v
func (v *Volume) SameGeometry(o *Volume) bool {
	return o != nil &&
		v.Format == o.Format &&
		v.Depth() == o.Depth() &&
		v.Width() == o.Width() &&
		v.Height() == o.Height()
}

// Validate checks that every plane matches the first plane's dimensions
func (v *Volume) Validate() error {
	if len(v.Planes) == 0 {
		return fmt.Errorf("volume has no planes")
	}
	w, h := v.Width(), v.Height()
	for i, p := range v.Planes {
		if p == nil {
			return fmt.Errorf("plane %d is nil", i)
		}
		if p.Width != w || p.Height != h {
			return fmt.Errorf("plane %d is %dx%d, expected %dx%d", i, p.Width, p.Height, w, h)
		}
		if len(p.Pix) != w*h {
			return fmt.Errorf("plane %d has %d samples, expected %d", i, len(p.Pix), w*h)
		}
	}
	return nil
}

// PackRGB packs 8-bit channels into a 0x00RRGGBB sample
func PackRGB(r, g, b uint8) float64 {
	return float64(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// UnpackRGB splits a packed color sample into its channels
func UnpackRGB(v float64) (r, g, b uint8) {
	c := uint32(v) & 0xffffff
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}
