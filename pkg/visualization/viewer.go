// Package visualization turns planes into displayable images and saves them.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dynreslice/internal/logging"
	"dynreslice/internal/models"
)

// Window maps sample values to display intensities. Values at or below Min
// are black, values at or above Max are white.
type Window struct {
	Min float64
	Max float64
}

// AutoWindow returns the range of all samples in vol. Packed color volumes
// always use the 8-bit channel range.
func AutoWindow(vol *models.Volume) Window {
	if vol.Format == models.PackedColor || vol.Depth() == 0 {
		return Window{Min: 0, Max: 255}
	}
	w := Window{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, p := range vol.Planes {
		if len(p.Pix) == 0 {
			continue
		}
		w.Min = math.Min(w.Min, floats.Min(p.Pix))
		w.Max = math.Max(w.Max, floats.Max(p.Pix))
	}
	if math.IsInf(w.Min, 0) {
		return Window{Min: 0, Max: 1}
	}
	return w
}

// Stats summarises the samples of one plane
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// PlaneStats computes min, max, mean and standard deviation of a plane
func PlaneStats(p *models.Plane) Stats {
	if len(p.Pix) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(p.Pix, nil)
	return Stats{
		Min:    floats.Min(p.Pix),
		Max:    floats.Max(p.Pix),
		Mean:   mean,
		StdDev: std,
	}
}

// Viewer renders the planes of a volume
type Viewer struct {
	vol    *models.Volume
	window Window
}

// NewViewer creates a viewer for vol displayed through window. A zero window
// is replaced by AutoWindow(vol).
func NewViewer(vol *models.Volume, window Window) *Viewer {
	if window.Min == 0 && window.Max == 0 {
		window = AutoWindow(vol)
	}
	return &Viewer{vol: vol, window: window}
}

// Window returns the display window in use
func (v *Viewer) Window() Window {
	return v.window
}

// Render converts plane z to an image: 8-bit gray for Integer8, 16-bit gray
// for Integer16 and Float, RGBA for packed color
func (v *Viewer) Render(z int) (image.Image, error) {
	if z < 0 || z >= v.vol.Depth() {
		return nil, fmt.Errorf("plane %d out of range [0,%d)", z, v.vol.Depth())
	}
	p := v.vol.Planes[z]
	rect := image.Rect(0, 0, p.Width, p.Height)

	switch v.vol.Format {
	case models.PackedColor:
		img := image.NewRGBA(rect)
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				r, g, b := models.UnpackRGB(p.Pix[y*p.Width+x])
				img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
			}
		}
		return img, nil

	case models.Integer8:
		img := image.NewGray(rect)
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8(v.scale(p.Pix[y*p.Width+x], 255))})
			}
		}
		return img, nil

	default:
		img := image.NewGray16(rect)
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(v.scale(p.Pix[y*p.Width+x], 65535))})
			}
		}
		return img, nil
	}
}

// scale maps a sample through the window onto [0,top]
func (v *Viewer) scale(s, top float64) float64 {
	span := v.window.Max - v.window.Min
	if span <= 0 {
		return 0
	}
	f := (s - v.window.Min) / span
	return math.Max(0, math.Min(top, math.Floor(f*top+0.5)))
}

// Scale resizes img to width×height with bilinear filtering
func Scale(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// AspectSize returns the display size of a plane so that pixels with the
// given calibration appear square
func AspectSize(width, height int, cal models.Calibration) (int, int) {
	cal = cal.Normalized()
	if cal.PixelHeight == cal.PixelWidth {
		return width, height
	}
	h := int(math.Round(float64(height) * cal.PixelHeight / cal.PixelWidth))
	if h < 1 {
		h = 1
	}
	return width, h
}

// SaveImage writes img to filename as PNG or, for .jpg and .jpeg names,
// as JPEG with the given quality
func SaveImage(img image.Image, filename string, quality int) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	return file.Close()
}

// SaveSequence renders every plane and saves them into outputDir as
// <prefix>_000.<ext>, <prefix>_001.<ext> and so on. ext is "png" or "jpg".
func (v *Viewer) SaveSequence(outputDir, prefix, ext string, quality int) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	files := make([]string, 0, v.vol.Depth())
	for z := 0; z < v.vol.Depth(); z++ {
		img, err := v.Render(z)
		if err != nil {
			return nil, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%03d.%s", prefix, z, ext))
		if err := SaveImage(img, filename, quality); err != nil {
			return nil, err
		}
		files = append(files, filename)
	}

	logging.Logger().Info("Saved planes", "dir", outputDir, "count", len(files))
	return files, nil
}
