// Package config provides the reslice preferences persisted between runs and
// the immutable per-request ResliceConfig built from them.
// Preferences are stored as YAML; missing files fall back to defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dynreslice/internal/models"
)

// Corner is the edge a rectangle sweep starts from
type Corner int

const (
	Top Corner = iota
	Left
	Bottom
	Right
)

var cornerNames = []string{"Top", "Left", "Bottom", "Right"}

// String returns the name used in preference files and flags
func (c Corner) String() string {
	if c < Top || c > Right {
		return fmt.Sprintf("Corner(%d)", int(c))
	}
	return cornerNames[c]
}

// ParseCorner parses a corner name, ignoring case
func ParseCorner(s string) (Corner, error) {
	for i, name := range cornerNames {
		if strings.EqualFold(s, name) {
			return Corner(i), nil
		}
	}
	return Top, fmt.Errorf("invalid start corner %q (must be one of %s)", s, strings.Join(cornerNames, ", "))
}

// MarshalYAML writes the corner by name
func (c Corner) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML reads the corner by name
func (c *Corner) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseCorner(value.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ResliceConfig is the immutable set of options one reslice runs with.
// It is passed by value; nothing in the engine keeps or mutates it.
type ResliceConfig struct {
	// OutputSpacing is the distance between output slices in calibrated units
	OutputSpacing float64

	// SweepSteps is the number of output slices for a segment sweep
	SweepSteps int

	// Flip traverses the planes from last to first
	Flip bool

	// Rotate swaps the profile axis and the plane axis of the output
	Rotate bool

	// Interpolate enables depth rescaling from the volume calibration.
	// When false the volume is treated as having unit spacing.
	Interpolate bool

	// StartAt is the edge a rectangle sweep starts from
	StartAt Corner

	// MaxOutputBytes bounds the size of one output volume; 0 uses the
	// engine's default ceiling
	MaxOutputBytes int64
}

// Default returns the configuration used when no preferences are available
func Default() ResliceConfig {
	return ResliceConfig{
		OutputSpacing: 1.0,
		SweepSteps:    1,
		Interpolate:   true,
		StartAt:       Top,
	}
}

// Calibration returns the calibration the reslice works in: cal itself, or
// unit spacing when interpolation is avoided
func (c ResliceConfig) Calibration(cal models.Calibration) models.Calibration {
	cal = cal.Normalized()
	if !c.Interpolate {
		unit := cal
		unit.PixelWidth, unit.PixelHeight, unit.PixelDepth = 1, 1, 1
		return unit
	}
	return cal
}

// DepthRatio is the plane spacing expressed in pixel widths. The plane axis
// of a reslice is stretched by this factor.
func (c ResliceConfig) DepthRatio(cal models.Calibration) float64 {
	if !c.Interpolate {
		return 1.0
	}
	cal = cal.Normalized()
	return cal.PixelDepth / cal.PixelWidth
}

// SpacingPixels is the output slice spacing expressed in pixel widths
func (c ResliceConfig) SpacingPixels(cal models.Calibration) float64 {
	if !c.Interpolate {
		return 1.0
	}
	cal = cal.Normalized()
	return c.OutputSpacing / cal.PixelWidth
}

// Preferences holds the reslice defaults remembered between runs
type Preferences struct {
	// Reslice options, as last chosen
	Reslice struct {
		// SliceSpacing is the output slice spacing in calibrated units;
		// 0 uses the plane spacing of the volume
		SliceSpacing float64 `yaml:"sliceSpacing"`

		// SliceCount is the number of slices swept from a straight line
		SliceCount int `yaml:"sliceCount"`

		// StartAt is the edge rectangle sweeps start from
		StartAt Corner `yaml:"startAt"`

		Flip               bool `yaml:"flip"`
		Rotate             bool `yaml:"rotate"`
		AvoidInterpolation bool `yaml:"avoidInterpolation"`
	} `yaml:"reslice"`

	// Memory limits
	Memory struct {
		// MaxOutputMB bounds a single output volume; 0 uses the default ceiling
		MaxOutputMB int `yaml:"maxOutputMB"`
	} `yaml:"memory"`

	// Output rendering
	Output struct {
		// Format is "png" or "jpeg"
		Format string `yaml:"format"`

		// JPEGQuality is used for jpeg output
		JPEGQuality int `yaml:"jpegQuality"`
	} `yaml:"output"`

	// Logging setup
	Logging struct {
		// Level is debug, info, warn or error
		Level string `yaml:"level"`

		// Dir receives the rotating JSON log; empty disables it
		Dir string `yaml:"dir"`

		MaxSizeMB  int `yaml:"maxSizeMB"`
		MaxBackups int `yaml:"maxBackups"`
	} `yaml:"logging"`
}

// DefaultPreferences returns preferences with default values
func DefaultPreferences() *Preferences {
	p := &Preferences{}

	p.Reslice.SliceSpacing = 0
	p.Reslice.SliceCount = 1
	p.Reslice.StartAt = Top

	p.Memory.MaxOutputMB = 1024

	p.Output.Format = "png"
	p.Output.JPEGQuality = 90

	p.Logging.Level = "info"
	p.Logging.MaxSizeMB = 10
	p.Logging.MaxBackups = 3

	return p
}

// Snapshot builds the immutable configuration for one reslice of a volume
// with the given calibration
func (p *Preferences) Snapshot(cal models.Calibration) ResliceConfig {
	cal = cal.Normalized()

	spacing := p.Reslice.SliceSpacing
	if spacing <= 0 {
		spacing = cal.PixelDepth
	}

	return ResliceConfig{
		OutputSpacing:  spacing,
		SweepSteps:     p.Reslice.SliceCount,
		Flip:           p.Reslice.Flip,
		Rotate:         p.Reslice.Rotate,
		Interpolate:    !p.Reslice.AvoidInterpolation,
		StartAt:        p.Reslice.StartAt,
		MaxOutputBytes: int64(p.Memory.MaxOutputMB) << 20,
	}
}

// Remember stores the options of cfg as the new defaults
func (p *Preferences) Remember(cfg ResliceConfig) {
	p.Reslice.SliceSpacing = cfg.OutputSpacing
	p.Reslice.SliceCount = cfg.SweepSteps
	p.Reslice.Flip = cfg.Flip
	p.Reslice.Rotate = cfg.Rotate
	p.Reslice.AvoidInterpolation = !cfg.Interpolate
	p.Reslice.StartAt = cfg.StartAt
}

// LogLevel parses the logging level, defaulting to info
func (p *Preferences) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the preferences for values the engine cannot use
func (p *Preferences) Validate() error {
	if p.Reslice.SliceSpacing < 0 {
		return fmt.Errorf("slice spacing must not be negative, got %v", p.Reslice.SliceSpacing)
	}
	if p.Reslice.SliceCount < 0 {
		return fmt.Errorf("slice count must not be negative, got %d", p.Reslice.SliceCount)
	}
	if p.Memory.MaxOutputMB < 0 {
		return fmt.Errorf("memory limit must not be negative, got %d", p.Memory.MaxOutputMB)
	}
	switch strings.ToLower(p.Output.Format) {
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("invalid output format %q (must be png or jpeg)", p.Output.Format)
	}
	return nil
}

// LoadPreferences loads preferences from a YAML file.
// If the file doesn't exist, it returns the defaults.
func LoadPreferences(path string) (*Preferences, error) {
	p := DefaultPreferences()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading preferences file: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("error parsing preferences file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preferences file %s: %w", path, err)
	}

	return p, nil
}

// SavePreferences writes preferences to a YAML file
func SavePreferences(p *Preferences, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating preferences directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("error marshaling preferences: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing preferences file: %w", err)
	}

	return nil
}

// CreateDefaultFile writes the default preferences to path
func CreateDefaultFile(path string) error {
	return SavePreferences(DefaultPreferences(), path)
}
