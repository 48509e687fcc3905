// Package dynamic keeps a reslice in step with a path that is being edited.
//
// A Handle owns one background worker. Every path change bumps a request
// counter; the worker reads the path current at the time it starts
// computing, and recomputes straight away if more requests arrived in the
// meantime. Bursts of edits therefore cost at most one extra computation and
// the last edit is always the last one published.
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"dynreslice/internal/logging"
	"dynreslice/internal/models"
	"dynreslice/pkg/config"
	"dynreslice/pkg/reslice"
	"dynreslice/pkg/trace"
)

// Source is the view the path is drawn on
type Source interface {
	// Path returns the current path, or false once it has been removed
	Path() (trace.Path, bool)

	// Volume returns the stack being resliced
	Volume() *models.Volume

	// PathChanges delivers a notification for every edit of the path
	PathChanges() <-chan struct{}

	// Closed is closed when the view goes away
	Closed() <-chan struct{}
}

// Display shows the reslice
type Display interface {
	// Publish is called from the worker after each successful computation.
	// It must not call Shutdown.
	Publish(img *LiveImage)

	// Closed is closed when the display goes away
	Closed() <-chan struct{}
}

// ErrorReporter may be implemented by a Display to be told about failed
// computations the user should know about
type ErrorReporter interface {
	ReportError(err error)
}

// Handle controls a running dynamic reslice
type Handle struct {
	source  Source
	display Display
	cfg     config.ResliceConfig
	overlay reslice.Overlay
	live    *LiveImage
	log     *slog.Logger

	ctx context.Context

	mu      sync.Mutex
	request uint64

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	computations   atomic.Uint64
	spacingPending bool
}

// Start computes the first reslice of the source's path, publishes it and
// starts following path changes. Errors from the first computation are
// returned and nothing is started.
//
// If source implements reslice.Overlay it is given the swept segments.
func Start(ctx context.Context, source Source, display Display, cfg config.ResliceConfig) (*Handle, error) {
	p, ok := source.Path()
	if !ok {
		return nil, fmt.Errorf("%w: no path", reslice.ErrInvalidPath)
	}

	h := &Handle{
		source:  source,
		display: display,
		cfg:     cfg,
		log:     logging.Logger().With("component", "dynamic"),
		ctx:     ctx,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if o, ok := source.(reslice.Overlay); ok {
		h.overlay = o
	}

	out, err := reslice.Reslice(ctx, source.Volume(), p, cfg, h.overlay)
	if err != nil {
		return nil, err
	}
	h.live = newLiveImage(out)
	display.Publish(h.live)

	h.wg.Add(2)
	go h.run()
	go h.listen()

	h.log.Info("Dynamic reslice started",
		"path", p.Kind.String(),
		"width", out.Width(),
		"height", out.Height(),
		"slices", out.Depth())
	return h, nil
}

// RequestUpdate asks for a recomputation. It never blocks and returns false
// once shutdown has begun.
func (h *Handle) RequestUpdate() bool {
	select {
	case <-h.done:
		return false
	default:
	}

	h.mu.Lock()
	h.request++
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return true
}

// Abort cancels the computation in flight, if any. A cancelled computation
// publishes nothing.
func (h *Handle) Abort() {
	h.cancelMu.Lock()
	defer h.cancelMu.Unlock()
	if h.cancel != nil {
		h.cancel()
	}
}

// Shutdown stops the worker and detaches from the source and display. It
// blocks until both goroutines have exited; a computation in flight is
// allowed to finish first.
func (h *Handle) Shutdown() {
	h.stop()
	h.wg.Wait()
}

// Done is closed once shutdown has begun
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Live returns the published image
func (h *Handle) Live() *LiveImage {
	return h.live
}

// Pending reports whether a request is queued or being computed
func (h *Handle) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.request != 0
}

// Computations returns the number of computations the worker has run
func (h *Handle) Computations() uint64 {
	return h.computations.Load()
}

func (h *Handle) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.log.Info("Dynamic reslice shut down")
	})
}

// run is the worker loop
func (h *Handle) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		default:
		}

		h.mu.Lock()
		r := h.request
		h.mu.Unlock()

		if r > 0 {
			h.update()
		}

		h.mu.Lock()
		if r == h.request {
			h.request = 0
			h.mu.Unlock()
			select {
			case <-h.wake:
			case <-h.done:
				return
			}
			continue
		}
		h.mu.Unlock()
	}
}

// listen turns source and display events into requests and shutdowns
func (h *Handle) listen() {
	defer h.wg.Done()

	changes := h.source.PathChanges()
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			h.RequestUpdate()
		case <-h.source.Closed():
			h.log.Debug("Source closed")
			h.stop()
			return
		case <-h.display.Closed():
			h.log.Debug("Display closed")
			h.stop()
			return
		}
	}
}

// update recomputes the reslice from the current path and publishes it
func (h *Handle) update() {
	ctx, cancel := context.WithCancel(h.ctx)
	h.cancelMu.Lock()
	h.cancel = cancel
	h.cancelMu.Unlock()
	defer func() {
		h.cancelMu.Lock()
		h.cancel = nil
		h.cancelMu.Unlock()
		cancel()
	}()

	p, ok := h.source.Path()
	if !ok {
		h.log.Info("Path removed")
		h.stop()
		return
	}
	vol := h.source.Volume()

	out, err := reslice.Reslice(ctx, vol, p, h.cfg, h.overlay)
	h.computations.Add(1)
	if err != nil {
		h.handleError(err)
		return
	}

	h.spacingPending = false
	inPlace := h.live.update(out)
	h.display.Publish(h.live)
	h.log.Debug("Reslice published", "inPlace", inPlace, "version", h.live.Version())
}

func (h *Handle) handleError(err error) {
	switch {
	case errors.Is(err, reslice.ErrInvalidPath):
		h.log.Debug("Path ignored", "error", err)
	case errors.Is(err, reslice.ErrCancelled):
		h.log.Info("Reslice aborted", "error", err)
	case errors.Is(err, reslice.ErrInvalidSpacing):
		if h.spacingPending {
			return
		}
		h.spacingPending = true
		h.log.Warn("Reslice skipped", "error", err)
		h.report(err)
	default:
		h.log.Warn("Reslice failed", "error", err)
		h.report(err)
	}
}

func (h *Handle) report(err error) {
	if r, ok := h.display.(ErrorReporter); ok {
		r.ReportError(err)
	}
}
