// Package track implements the Tracker contract: IoU-greedy association of
// per-frame detections into persistent TrackedObjects, generalizing the
// teacher's SORT-like face tracker to the full TrackedObject shape (estimate,
// motionless_count, disappeared, region, sub_label).
package track

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/your-org/camvision/internal/model"
)

// motionlessEpsilon bounds how much a box may drift between frames and
// still count as "no meaningful movement" for MotionlessCount purposes.
const motionlessEpsilon = 0.02

// Tracker matches detections to tracks by IoU across frames, one instance
// per camera.
type Tracker struct {
	mu             sync.Mutex
	tracks         map[string]*model.TrackedObject
	nextID         int
	camera         string
	maxDisappeared int
	minIoU         float64
}

func NewTracker(camera string, maxDisappeared int, minIoU float64) *Tracker {
	if minIoU <= 0 {
		minIoU = 0.3
	}
	return &Tracker{
		tracks:         make(map[string]*model.TrackedObject),
		camera:         camera,
		maxDisappeared: maxDisappeared,
		minIoU:         minIoU,
	}
}

// MatchAndUpdate associates detections to existing tracks, creates tracks
// for unmatched detections, and evicts tracks that have disappeared for too
// long. Returns the full live track set keyed by id.
func (t *Tracker) MatchAndUpdate(frameTime time.Time, detections []model.Detection) map[string]model.TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	matchedTrack := make(map[string]bool, len(t.tracks))
	matchedDet := make(map[int]bool, len(detections))

	for di, det := range detections {
		bestIoU := t.minIoU
		bestID := ""
		for id, tr := range t.tracks {
			if matchedTrack[id] || tr.Label != det.Label {
				continue
			}
			v := iou(det.Box, tr.Box)
			if v > bestIoU {
				bestIoU = v
				bestID = id
			}
		}
		if bestID == "" {
			continue
		}
		tr := t.tracks[bestID]
		if boxesStable(tr.Box, det.Box) {
			tr.MotionlessCount++
		} else {
			tr.MotionlessCount = 0
		}
		tr.Box = det.Box
		tr.Score = det.Score
		tr.Area = det.Area
		tr.Ratio = det.Ratio
		tr.Region = det.Region
		tr.Estimate = det.Box
		tr.Disappeared = 0
		tr.FrameTime = frameTime
		matchedTrack[bestID] = true
		matchedDet[di] = true
	}

	for di, det := range detections {
		if matchedDet[di] {
			continue
		}
		t.nextID++
		id := fmt.Sprintf("%s-%d", t.camera, t.nextID)
		t.tracks[id] = &model.TrackedObject{
			ID:        id,
			Label:     det.Label,
			Score:     det.Score,
			Box:       det.Box,
			Area:      det.Area,
			Ratio:     det.Ratio,
			Region:    det.Region,
			Estimate:  det.Box,
			FrameTime: frameTime,
		}
	}

	for id, tr := range t.tracks {
		if !matchedTrack[id] {
			tr.Disappeared++
		}
		if tr.Disappeared > t.maxDisappeared {
			delete(t.tracks, id)
		}
	}

	return t.snapshot()
}

// UpdateFrameTimes advances every live track's Disappeared counter without
// any detections this frame — the path the Processing Loop takes when a
// frame yields no detections at all (none fresh, none seeded).
func (t *Tracker) UpdateFrameTimes(frameTime time.Time) map[string]model.TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, tr := range t.tracks {
		tr.Disappeared++
		tr.FrameTime = frameTime
		if tr.Disappeared > t.maxDisappeared {
			delete(t.tracks, id)
		}
	}
	return t.snapshot()
}

func (t *Tracker) snapshot() map[string]model.TrackedObject {
	out := make(map[string]model.TrackedObject, len(t.tracks))
	for id, tr := range t.tracks {
		out[id] = *tr
	}
	return out
}

// Count returns the number of live tracks.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Snapshot returns the current live track set, keyed by id.
func (t *Tracker) Snapshot() map[string]model.TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Get returns a single live track by id.
func (t *Tracker) Get(id string) (model.TrackedObject, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.tracks[id]
	if !ok {
		return model.TrackedObject{}, false
	}
	return *tr, true
}

// MinIoU returns the IoU threshold used for detection-to-track association.
func (t *Tracker) MinIoU() float64 {
	return t.minIoU
}

func boxesStable(a, b model.Box) bool {
	aw, ah := float64(a.Width()), float64(a.Height())
	if aw <= 0 || ah <= 0 {
		return false
	}
	dx := math.Abs(float64(b.X1-a.X1)) / aw
	dy := math.Abs(float64(b.Y1-a.Y1)) / ah
	return dx <= motionlessEpsilon && dy <= motionlessEpsilon
}

func iou(a, b model.Box) float64 {
	ix1 := maxI(a.X1, b.X1)
	iy1 := maxI(a.Y1, b.Y1)
	ix2 := minI(a.X2, b.X2)
	iy2 := minI(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := float64(iw * ih)
	union := float64(a.Area()+b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minI(a, b int) int {
	if a < b {
		return a
	}
	return b
}
