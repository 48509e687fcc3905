package dynamic

import (
	"sync"

	"dynreslice/internal/models"
)

// LiveImage is the reslice shown by a display. The coordinator overwrites its
// pixels after every computation; readers go through View.
type LiveImage struct {
	mu      sync.RWMutex
	vol     *models.Volume
	version uint64
}

func newLiveImage(vol *models.Volume) *LiveImage {
	return &LiveImage{vol: vol, version: 1}
}

// View calls fn with the current image while holding the read lock. fn must
// not keep the volume after returning.
func (l *LiveImage) View(fn func(vol *models.Volume)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.vol)
}

// Snapshot returns a deep copy of the current image
func (l *LiveImage) Snapshot() *models.Volume {
	var out *models.Volume
	l.View(func(vol *models.Volume) {
		out = &models.Volume{
			Planes:      make([]*models.Plane, len(vol.Planes)),
			Format:      vol.Format,
			Calibration: vol.Calibration,
		}
		for i, p := range vol.Planes {
			out.Planes[i] = p.Clone()
		}
	})
	return out
}

// Version increases by one with every update
func (l *LiveImage) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// update copies the pixels of next into the current image. When the
// dimensions changed the buffers are swapped instead. It reports whether the
// copy happened in place.
func (l *LiveImage) update(next *models.Volume) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.version++
	l.vol.Calibration = next.Calibration
	if !l.vol.SameGeometry(next) {
		l.vol = next
		return false
	}
	for i, p := range next.Planes {
		copy(l.vol.Planes[i].Pix, p.Pix)
	}
	return true
}
