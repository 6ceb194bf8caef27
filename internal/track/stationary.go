package track

import "github.com/your-org/camvision/internal/model"

// StationaryThreshold gates which live tracks are treated as stationary and
// which periodic re-check interval applies, per spec.md §4.5 step 3.
type StationaryThreshold struct {
	MinMotionless int // motionless_count must be >= this
	Interval      int // 0 disables periodic re-check
}

// Stationary returns the ids of tracks that have gone motionless long
// enough, are not due a periodic re-check this frame, have not disappeared,
// and whose box does not intersect any current motion box.
func Stationary(tracks map[string]model.TrackedObject, threshold StationaryThreshold, motionBoxes []model.Box) []string {
	var ids []string
	for id, tr := range tracks {
		if tr.MotionlessCount < threshold.MinMotionless {
			continue
		}
		if threshold.Interval > 0 && tr.MotionlessCount%threshold.Interval == 0 {
			continue
		}
		if tr.Disappeared != 0 {
			continue
		}
		if intersectsAny(tr.Box, motionBoxes) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func intersectsAny(box model.Box, motionBoxes []model.Box) bool {
	for _, m := range motionBoxes {
		if intersects(box, m) {
			return true
		}
	}
	return false
}

func intersects(a, b model.Box) bool {
	return a.X1 < b.X2 && a.X2 > b.X1 && a.Y1 < b.Y2 && a.Y2 > b.Y1
}
