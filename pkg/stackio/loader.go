// Package stackio loads image stacks from disk.
//
// A stack is a directory of equally sized images, one per plane, ordered by
// the number embedded in each file name (slice_2.png comes before
// slice_10.png). JPEG, PNG, GIF, TIFF and BMP files are recognised. The
// pixel format of the volume follows the first image: 8-bit gray becomes
// Integer8, 16-bit gray Integer16 and anything else packed color.
package stackio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"dynreslice/internal/logging"
	"dynreslice/internal/models"
)

// ErrNoImages is returned for a directory without any recognised image
var ErrNoImages = errors.New("no images found")

var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Options controls how a stack is loaded
type Options struct {
	// Calibration is attached to the loaded volume. The zero value means
	// pixel units.
	Calibration models.Calibration

	// Workers is the number of files decoded concurrently; 0 uses all CPUs
	Workers int
}

// ListImages returns the image files in dir in plane order
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// Load reads every image in dir into a volume
func Load(dir string, opts Options) (*models.Volume, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	return LoadFiles(paths, opts)
}

// LoadFiles reads the given images, in order, into a volume
func LoadFiles(paths []string, opts Options) (*models.Volume, error) {
	if len(paths) == 0 {
		return nil, ErrNoImages
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type result struct {
		index int
		img   image.Image
		err   error
	}

	jobs := make(chan int)
	results := make(chan result, len(paths))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				img, err := decodeFile(paths[i])
				results <- result{index: i, img: img, err: err}
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	images := make([]image.Image, len(paths))
	for r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filepath.Base(paths[r.index]), r.err)
		}
		images[r.index] = r.img
	}

	vol, err := FromImages(images)
	if err != nil {
		return nil, err
	}
	if opts.Calibration.PixelWidth > 0 {
		vol.Calibration = opts.Calibration.Normalized()
	}

	logging.Logger().Info("Stack loaded",
		"planes", vol.Depth(),
		"width", vol.Width(),
		"height", vol.Height(),
		"format", vol.Format.String())
	return vol, nil
}

// FromImages converts decoded images into a volume. All images must have the
// size of the first one.
func FromImages(images []image.Image) (*models.Volume, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	format := Format(images[0])
	b := images[0].Bounds()
	vol := &models.Volume{
		Planes:      make([]*models.Plane, len(images)),
		Format:      format,
		Calibration: models.UnitCalibration(),
	}
	for i, img := range images {
		if img.Bounds().Dx() != b.Dx() || img.Bounds().Dy() != b.Dy() {
			return nil, fmt.Errorf("image %d is %dx%d, expected %dx%d",
				i, img.Bounds().Dx(), img.Bounds().Dy(), b.Dx(), b.Dy())
		}
		vol.Planes[i] = ToPlane(img, format)
	}
	return vol, nil
}

// Format returns the pixel format an image is stored as
func Format(img image.Image) models.PixelFormat {
	switch img.ColorModel() {
	case color.GrayModel:
		return models.Integer8
	case color.Gray16Model:
		return models.Integer16
	default:
		return models.PackedColor
	}
}

// ToPlane converts an image to a plane of the given format
func ToPlane(img image.Image, format models.PixelFormat) *models.Plane {
	b := img.Bounds()
	p := models.NewPlane(b.Dx(), b.Dy())

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			var v float64
			switch format {
			case models.Integer8:
				v = float64(color.GrayModel.Convert(c).(color.Gray).Y)
			case models.Integer16:
				v = float64(color.Gray16Model.Convert(c).(color.Gray16).Y)
			case models.Float:
				r, _, _, _ := c.RGBA()
				v = float64(r) / 65535.0
			default:
				r, g, bl, _ := c.RGBA()
				v = models.PackRGB(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
			p.Pix[y*p.Width+x] = v
		}
	}
	return p
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// extractNumber returns the digits of a file name as a number, or 0 when
// there are none
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
