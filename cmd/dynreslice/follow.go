package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"dynreslice/internal/logging"
	"dynreslice/internal/models"
	"dynreslice/pkg/dynamic"
	"dynreslice/pkg/trace"
	"dynreslice/pkg/visualization"
)

// script is a recorded sequence of path edits
type script struct {
	// Interval is the pause between edits
	Interval time.Duration `yaml:"interval"`

	// Edits are applied in order; the first one must set a path
	Edits []edit `yaml:"edits"`
}

// edit sets a new path or removes the current one
type edit struct {
	Line     []float64   `yaml:"line,omitempty"`
	Polyline [][]float64 `yaml:"polyline,omitempty"`
	Freehand [][]float64 `yaml:"freehand,omitempty"`
	Rect     []float64   `yaml:"rect,omitempty"`
	Remove   bool        `yaml:"remove,omitempty"`
}

func loadScript(path string) (*script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading script: %w", err)
	}
	s := &script{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("error parsing script: %w", err)
	}
	if len(s.Edits) == 0 {
		return nil, fmt.Errorf("script %s has no edits", path)
	}
	for i, e := range s.Edits {
		if _, _, err := e.path(); err != nil {
			return nil, fmt.Errorf("edit %d: %w", i+1, err)
		}
	}
	if _, ok, _ := s.Edits[0].path(); !ok {
		return nil, fmt.Errorf("the first edit must set a path")
	}
	return s, nil
}

// path returns the path the edit sets, or false for a removal
func (e edit) path() (trace.Path, bool, error) {
	switch {
	case e.Remove:
		return trace.Path{}, false, nil
	case e.Line != nil:
		if len(e.Line) != 4 {
			return trace.Path{}, false, fmt.Errorf("line needs 4 numbers, got %d", len(e.Line))
		}
		return trace.Segment(r2.Vec{X: e.Line[0], Y: e.Line[1]}, r2.Vec{X: e.Line[2], Y: e.Line[3]}), true, nil
	case e.Polyline != nil:
		pts, err := toPoints(e.Polyline)
		return trace.Polyline(pts...), true, err
	case e.Freehand != nil:
		pts, err := toPoints(e.Freehand)
		return trace.Freehand(pts...), true, err
	case e.Rect != nil:
		if len(e.Rect) != 4 {
			return trace.Path{}, false, fmt.Errorf("rect needs 4 numbers, got %d", len(e.Rect))
		}
		origin := r2.Vec{X: e.Rect[0], Y: e.Rect[1]}
		return trace.Rectangle(origin, r2.Add(origin, r2.Vec{X: e.Rect[2], Y: e.Rect[3]})), true, nil
	default:
		return trace.Path{}, false, fmt.Errorf("edit sets nothing")
	}
}

func toPoints(pairs [][]float64) ([]r2.Vec, error) {
	pts := make([]r2.Vec, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("point %d needs 2 numbers, got %d", i+1, len(p))
		}
		pts[i] = r2.Vec{X: p[0], Y: p[1]}
	}
	return pts, nil
}

// scriptSource serves the path currently set by the script
type scriptSource struct {
	mu      sync.Mutex
	path    trace.Path
	hasPath bool
	vol     *models.Volume
	overlay *visualization.Overlay
	closed  chan struct{}
}

func (s *scriptSource) Path() (trace.Path, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.hasPath
}

func (s *scriptSource) Volume() *models.Volume { return s.vol }

// Edits are pushed to the handle directly, so no change notifications
func (s *scriptSource) PathChanges() <-chan struct{} { return nil }

func (s *scriptSource) Closed() <-chan struct{} { return s.closed }

func (s *scriptSource) DrawSegment(a, b r2.Vec) {
	if s.overlay != nil {
		s.overlay.DrawSegment(a, b)
	}
}

func (s *scriptSource) apply(e edit) {
	p, ok, _ := e.path()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path, s.hasPath = p, ok
	if s.overlay != nil {
		s.overlay.Reset()
	}
}

// frameDisplay saves every published reslice as a numbered frame
type frameDisplay struct {
	dir     string
	ext     string
	quality int
	window  visualization.Window
	closed  chan struct{}

	mu     sync.Mutex
	frames int
	errs   int
}

func (d *frameDisplay) Publish(img *dynamic.LiveImage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	name := filepath.Join(d.dir, fmt.Sprintf("frame_%03d.%s", d.frames, d.ext))
	img.View(func(vol *models.Volume) {
		viewer := visualization.NewViewer(vol, d.window)
		frame, rerr := viewer.Render(vol.Depth() / 2)
		if rerr != nil {
			err = rerr
			return
		}
		err = visualization.SaveImage(frame, name, d.quality)
	})
	if err != nil {
		logging.Logger().Error("Failed to save frame", "file", name, "error", err)
		return
	}
	d.frames++
}

func (d *frameDisplay) ReportError(err error) {
	d.mu.Lock()
	d.errs++
	d.mu.Unlock()
	logging.Logger().Warn("Reslice not updated", "error", err)
}

func (d *frameDisplay) Closed() <-chan struct{} { return d.closed }

func newFollowCmd(a *app) *cobra.Command {
	var (
		stack   stackFlags
		opts    resliceFlags
		output  string
		overlay bool
	)

	cmd := &cobra.Command{
		Use:   "follow <script.yaml>",
		Short: "Replay path edits and republish the reslice after each one",
		Long: `follow replays a YAML script of path edits against a stack and keeps the
reslice in step, saving a frame every time a new reslice is published.
Edits arriving while a reslice is being computed are coalesced, so fewer
frames than edits may be written; the last edit is always reflected.

  interval: 20ms
  edits:
    - line: [10, 50, 90, 50]
    - line: [10, 50, 90, 60]
    - polyline: [[10, 10], [50, 40], [90, 10]]
    - rect: [0, 0, 64, 64]
    - remove: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Logger()

			s, err := loadScript(args[0])
			if err != nil {
				return err
			}
			vol, err := stack.load()
			if err != nil {
				return err
			}
			cfg, err := opts.config(cmd, a.prefs, vol.Calibration)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(output, 0755); err != nil {
				return err
			}

			src := &scriptSource{vol: vol, closed: make(chan struct{})}
			if overlay {
				base, err := visualization.NewViewer(vol, visualization.Window{}).Render(0)
				if err != nil {
					return err
				}
				src.overlay = visualization.NewOverlay(base)
			}
			src.apply(s.Edits[0])

			disp := &frameDisplay{
				dir:     output,
				ext:     outputExt(a.prefs.Output.Format),
				quality: a.prefs.Output.JPEGQuality,
				window:  visualization.AutoWindow(vol),
				closed:  make(chan struct{}),
			}

			ctx := cmd.Context()
			h, err := dynamic.Start(ctx, src, disp, cfg)
			if err != nil {
				return fmt.Errorf("initial reslice failed: %w", err)
			}

			if err := replay(ctx, h, src, s); err != nil {
				h.Abort()
				h.Shutdown()
				return err
			}
			settle(ctx, h)
			close(src.closed)
			h.Shutdown()

			if src.overlay != nil {
				if err := visualization.SaveImage(src.overlay.Image(), filepath.Join(output, "overlay.png"), disp.quality); err != nil {
					return err
				}
			}

			disp.mu.Lock()
			frames, errs := disp.frames, disp.errs
			disp.mu.Unlock()
			log.Info("Follow finished", "edits", len(s.Edits), "computations", h.Computations())
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d edit(s), wrote %d frame(s) to %s, %d reported error(s)\n",
				len(s.Edits), frames, output, errs)
			return nil
		},
	}

	stack.register(cmd)
	opts.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "frames", "Directory for the published frames")
	cmd.Flags().BoolVar(&overlay, "overlay", false, "Also save the swept lines of the last edit over the first plane")

	return cmd
}

// replay applies the remaining edits of s, requesting an update after each
func replay(ctx context.Context, h *dynamic.Handle, src *scriptSource, s *script) error {
	for _, e := range s.Edits[1:] {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.Done():
			return nil
		case <-time.After(s.Interval):
		}
		src.apply(e)
		h.RequestUpdate()
	}
	return nil
}

// settle waits until the last request has been handled or the handle shut
// itself down
func settle(ctx context.Context, h *dynamic.Handle) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for h.Pending() {
		select {
		case <-ctx.Done():
			h.Abort()
			return
		case <-h.Done():
			return
		case <-ticker.C:
		}
	}
}
