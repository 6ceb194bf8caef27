package pipeline

import (
	"context"
	"testing"

	"gocv.io/x/gocv"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/facerec"
	"github.com/your-org/camvision/internal/model"
	"github.com/your-org/camvision/internal/track"
)

func newTestTracker() *track.Tracker {
	return track.NewTracker("test", 10, 0.3)
}

func TestFilterObjectsAppliesAllowlist(t *testing.T) {
	l := &Loop{
		Objects:        config.ObjectFilterConfig{MaxArea: 1 << 30, MaxRatio: 1 << 10},
		ObjectsToTrack: []string{"person"},
	}
	dets := []model.Detection{
		{Label: "person", Score: 1, Box: model.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Area: 100},
		{Label: "car", Score: 1, Box: model.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Area: 100},
	}
	got := l.filterObjects(dets)
	if len(got) != 1 || got[0].Label != "person" {
		t.Fatalf("filterObjects() = %+v, want only the person detection", got)
	}
}

func TestFilterObjectsRejectsOutOfRangeArea(t *testing.T) {
	l := &Loop{Objects: config.ObjectFilterConfig{MinArea: 50, MaxArea: 200, MaxRatio: 1 << 10}}
	dets := []model.Detection{
		{Label: "person", Score: 1, Box: model.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Area: 10000},
	}
	if got := l.filterObjects(dets); len(got) != 0 {
		t.Fatalf("filterObjects() = %+v, want detection dropped for exceeding max area", got)
	}
}

func TestFilterObjectsRejectsBelowMinScore(t *testing.T) {
	l := &Loop{Objects: config.ObjectFilterConfig{MaxArea: 1 << 30, MinScore: 0.5, MaxRatio: 1 << 10}}
	dets := []model.Detection{
		{Label: "person", Score: 0.2, Box: model.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, Area: 100},
	}
	if got := l.filterObjects(dets); len(got) != 0 {
		t.Fatalf("filterObjects() = %+v, want detection dropped for low score", got)
	}
}

func TestFaceRecognitionRegionsModeDefaultsToRegions(t *testing.T) {
	l := &Loop{}
	if !l.faceRecognitionRegionsMode() {
		t.Fatalf("faceRecognitionRegionsMode() = false with an empty config, want true (regions is the default)")
	}
}

func TestFaceRecognitionRegionsModeRecognizesTracked(t *testing.T) {
	l := &Loop{FaceRecognitionArea: "Tracked"}
	if l.faceRecognitionRegionsMode() {
		t.Fatalf("faceRecognitionRegionsMode() = true with face_recognition_area=Tracked, want false")
	}
}

func TestHasPersonFindsPersonLabel(t *testing.T) {
	dets := []model.Detection{{Label: "car"}, {Label: "person"}}
	if !hasPerson(dets) {
		t.Fatalf("hasPerson() = false, want true")
	}
	if hasPerson([]model.Detection{{Label: "car"}}) {
		t.Fatalf("hasPerson() = true with no person detection, want false")
	}
}

func TestPlanRegionsStartupScanBeforeAnyMotion(t *testing.T) {
	l := &Loop{ModelW: 320, ModelH: 320, Tracker: newTestTracker()}
	regions := l.planRegions(900, 900, nil)
	if len(regions) != 1 || regions[0].Source != "startup_scan" {
		t.Fatalf("planRegions() = %+v, want a single startup_scan region", regions)
	}
}

func TestPlanRegionsClustersMotionBoxes(t *testing.T) {
	l := &Loop{ModelW: 320, ModelH: 320, Tracker: newTestTracker()}
	candidates := []model.Box{{X1: 100, Y1: 100, X2: 140, Y2: 140}}
	regions := l.planRegions(900, 900, candidates)
	if len(regions) != 1 || regions[0].Source != "cluster" {
		t.Fatalf("planRegions() = %+v, want a single cluster region", regions)
	}
}

// fakeLabelLookup is an in-memory LabelLookup for testing the FaceLabel
// lookup-miss path, mirroring facerec's fakeStore pattern.
type fakeLabelLookup struct {
	labels map[int]string
}

func (f *fakeLabelLookup) Label(ctx context.Context, id int) (*model.FaceLabel, error) {
	name, ok := f.labels[id]
	if !ok {
		return nil, nil
	}
	return &model.FaceLabel{ID: id, Label: name}, nil
}

type fakeRecognizer struct {
	result facerec.Result
}

func (f *fakeRecognizer) RecognizeFace(ctx context.Context, frame gocv.Mat, faceBox model.Box, embedding []float32) (facerec.Result, error) {
	return f.result, nil
}
func (f *fakeRecognizer) Close() error { return nil }

func TestRecognizeFaceResolvesLabelOnAccept(t *testing.T) {
	l := &Loop{
		Recognizer: &fakeRecognizer{result: facerec.Result{LabelID: 7, Confidence: 0.9}},
		Labels:     &fakeLabelLookup{labels: map[int]string{7: "alice"}},
	}
	tr := &model.TrackedObject{}
	c, ok := l.recognizeFace(context.Background(), gocv.NewMat(), "t-1", tr, model.FaceDetection{Box: model.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}})
	if !ok || c.Label != "alice" {
		t.Fatalf("recognizeFace() = (%+v, %v), want accepted candidate labeled alice", c, ok)
	}
	if len(tr.Attributes) != 1 || tr.Attributes[0].Label != "face" {
		t.Fatalf("recognizeFace() did not attach a face attribute: %+v", tr.Attributes)
	}
}

func TestRecognizeFaceDiscardsOnLabelLookupMiss(t *testing.T) {
	l := &Loop{
		Recognizer: &fakeRecognizer{result: facerec.Result{LabelID: 9, Confidence: 0.9}},
		Labels:     &fakeLabelLookup{labels: map[int]string{}}, // 9 is not a known label
	}
	tr := &model.TrackedObject{SubLabel: "previous", SubLabelScore: 0.5}
	_, ok := l.recognizeFace(context.Background(), gocv.NewMat(), "t-1", tr, model.FaceDetection{Box: model.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}})
	if ok {
		t.Fatalf("recognizeFace() accepted a candidate despite a label lookup miss")
	}

	facerec.PromoteSubLabel(tr, nil)
	if tr.SubLabel != "previous" || tr.SubLabelScore != 0.5 {
		t.Fatalf("a label lookup miss must leave the track's previous sub-label untouched, got %+v", tr)
	}
}

func TestRecognizeFaceDiscardsOnUnacceptedResult(t *testing.T) {
	l := &Loop{
		Recognizer: &fakeRecognizer{result: facerec.Result{LabelID: 0}},
		Labels:     &fakeLabelLookup{labels: map[int]string{7: "alice"}},
	}
	tr := &model.TrackedObject{}
	_, ok := l.recognizeFace(context.Background(), gocv.NewMat(), "t-1", tr, model.FaceDetection{Box: model.Box{X1: 1, Y1: 1, X2: 5, Y2: 5}})
	if ok {
		t.Fatalf("recognizeFace() accepted an unaccepted recognition result")
	}
}
