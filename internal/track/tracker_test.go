package track

import (
	"testing"
	"time"

	"github.com/your-org/camvision/internal/model"
)

func TestMatchAndUpdateCreatesNewTrack(t *testing.T) {
	tr := NewTracker("cam1", 10, 0.3)
	det := model.Detection{Label: "person", Score: 0.9, Box: model.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	tracks := tr.MatchAndUpdate(time.Unix(0, 0), []model.Detection{det})
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
}

func TestMatchAndUpdateMatchesSameTrackAcrossFrames(t *testing.T) {
	tr := NewTracker("cam1", 10, 0.3)
	base := model.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}
	moved := model.Box{X1: 5, Y1: 5, X2: 105, Y2: 105}

	first := tr.MatchAndUpdate(time.Unix(0, 0), []model.Detection{{Label: "person", Score: 0.9, Box: base}})
	var firstID string
	for id := range first {
		firstID = id
	}

	second := tr.MatchAndUpdate(time.Unix(1, 0), []model.Detection{{Label: "person", Score: 0.9, Box: moved}})
	if len(second) != 1 {
		t.Fatalf("got %d tracks, want 1 (same object should match)", len(second))
	}
	if _, ok := second[firstID]; !ok {
		t.Fatalf("track id changed across frames: wanted %q in %v", firstID, second)
	}
}

func TestMatchAndUpdateEvictsAfterMaxDisappeared(t *testing.T) {
	tr := NewTracker("cam1", 2, 0.3)
	box := model.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}
	tr.MatchAndUpdate(time.Unix(0, 0), []model.Detection{{Label: "person", Score: 0.9, Box: box}})

	for i := 0; i < 3; i++ {
		tr.MatchAndUpdate(time.Unix(int64(i+1), 0), nil)
	}
	if tr.Count() != 0 {
		t.Fatalf("track survived %d missed frames, want eviction after maxDisappeared", 3)
	}
}

func TestMatchAndUpdateIncrementsMotionlessCountWhenStable(t *testing.T) {
	tr := NewTracker("cam1", 10, 0.3)
	box := model.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}
	first := tr.MatchAndUpdate(time.Unix(0, 0), []model.Detection{{Label: "person", Score: 0.9, Box: box}})
	var id string
	for k := range first {
		id = k
	}

	second := tr.MatchAndUpdate(time.Unix(1, 0), []model.Detection{{Label: "person", Score: 0.9, Box: box}})
	if second[id].MotionlessCount != 1 {
		t.Fatalf("MotionlessCount = %d, want 1 for an unmoved box", second[id].MotionlessCount)
	}
}

func TestStationaryExcludesTracksOverlappingMotion(t *testing.T) {
	tracks := map[string]model.TrackedObject{
		"a": {ID: "a", Box: model.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, MotionlessCount: 10, Disappeared: 0},
		"b": {ID: "b", Box: model.Box{X1: 200, Y1: 200, X2: 250, Y2: 250}, MotionlessCount: 10, Disappeared: 0},
	}
	motion := []model.Box{{X1: 0, Y1: 0, X2: 50, Y2: 50}}
	got := Stationary(tracks, StationaryThreshold{MinMotionless: 5}, motion)

	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("Stationary() = %v, want [\"b\"]", got)
	}
}

func TestStationaryHonorsPeriodicRecheckInterval(t *testing.T) {
	tracks := map[string]model.TrackedObject{
		"a": {ID: "a", Box: model.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, MotionlessCount: 10, Disappeared: 0},
	}
	got := Stationary(tracks, StationaryThreshold{MinMotionless: 5, Interval: 5}, nil)
	if len(got) != 0 {
		t.Fatalf("Stationary() = %v, want [] when motionless_count %% interval == 0", got)
	}
}
