package facerec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/model"
)

func TestNewRecognizerRejectsUnknownModel(t *testing.T) {
	_, err := NewRecognizer(config.FaceConfig{Model: "something-else"}, nil)
	if err == nil {
		t.Fatalf("expected an error for an unrecognized face_recognition_model")
	}
}

type fakeStore struct {
	records []model.FaceRecord
}

func (f *fakeStore) LabeledEmbeddings(ctx context.Context) ([]model.FaceRecord, error) {
	return f.records, nil
}

func TestNewRecognizerBuildsCosineRecognizer(t *testing.T) {
	r, err := NewRecognizer(config.FaceConfig{Model: "DOODS_COS", MinScore: 0.5}, &fakeStore{})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer r.Close()
}

func TestCosineRecognizerAcceptsAboveThreshold(t *testing.T) {
	store := &fakeStore{records: []model.FaceRecord{
		{LabelID: 7, Embedding: []float32{1, 0, 0}},
	}}
	r := newCosineRecognizer(store, 0.5)
	got, err := r.Recognize(context.Background(), []float32{0.9, 0.1, 0})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !got.Accepted() || got.LabelID != 7 {
		t.Fatalf("Recognize() = %+v, want accepted label 7", got)
	}
}

func TestEuclideanRecognizerRejectsBelowThreshold(t *testing.T) {
	store := &fakeStore{records: []model.FaceRecord{
		{LabelID: 3, Embedding: []float32{10, 10, 10}},
	}}
	r := newEuclideanRecognizer(store, 0.99)
	got, err := r.Recognize(context.Background(), []float32{0, 0, 0})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got.Accepted() {
		t.Fatalf("Recognize() = %+v, want rejected (far embedding, high threshold)", got)
	}
}

func TestPromoteSubLabelPicksLargestArea(t *testing.T) {
	track := &model.TrackedObject{}
	candidates := []Candidate{
		{Label: "alice", Area: 100, Result: Result{LabelID: 1, Confidence: 0.7}},
		{Label: "bob", Area: 500, Result: Result{LabelID: 2, Confidence: 0.6}},
	}
	PromoteSubLabel(track, candidates)
	if track.SubLabel != "bob" {
		t.Fatalf("SubLabel = %q, want %q (largest area)", track.SubLabel, "bob")
	}
}

func TestPromoteSubLabelClearsCurOnNoCandidates(t *testing.T) {
	track := &model.TrackedObject{SubLabelCur: "stale"}
	PromoteSubLabel(track, nil)
	if track.SubLabelCur != "" {
		t.Fatalf("SubLabelCur = %q, want cleared", track.SubLabelCur)
	}
}

func TestTrainingSidebandRequiresSentinelFile(t *testing.T) {
	dir := t.TempDir()
	s := TrainingSideband{FacesDir: dir, Camera: "front", UnknownOnly: false}
	if s.ShouldCapture("front", "Any", 0) {
		t.Fatalf("ShouldCapture() = true without the sentinel file present")
	}

	if err := os.WriteFile(filepath.Join(dir, sentinelFile), nil, 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}
	if !s.ShouldCapture("front", "Any", 0) {
		t.Fatalf("ShouldCapture() = false with sentinel present and camera matching Any")
	}
}

func TestTrainingSidebandGatesOnCameraAndUnknownOnly(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, sentinelFile), nil, 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}
	s := TrainingSideband{FacesDir: dir, UnknownOnly: true}

	if s.ShouldCapture("back", "front", 0) {
		t.Fatalf("ShouldCapture() = true for a non-matching camera")
	}
	if s.ShouldCapture("front", "front", 5) {
		t.Fatalf("ShouldCapture() = true for an already-recognized face with UnknownOnly set")
	}
	if !s.ShouldCapture("front", "front", 0) {
		t.Fatalf("ShouldCapture() = false for an unknown face on the matching camera")
	}
}

func TestNewFaceIDIsUnique(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a, err := NewFaceID(now)
	if err != nil {
		t.Fatalf("NewFaceID: %v", err)
	}
	b, err := NewFaceID(now)
	if err != nil {
		t.Fatalf("NewFaceID: %v", err)
	}
	if a == b {
		t.Fatalf("NewFaceID produced identical ids twice: %q", a)
	}
}
