// Package facerec implements the Face Recognition component: classical
// grayscale recognizers (LBPH/Fisher/Eigen) and embedding-based nearest
// neighbor search (DOODS_EU/DOODS_COS), plus the training capture sideband.
package facerec

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/model"
)

// Result is the outcome of one recognition attempt.
type Result struct {
	LabelID    int
	Confidence float64
}

func (r Result) Accepted() bool { return r.LabelID > 0 }

// Recognizer is satisfied by both the classical and embedding-based
// scoring models so the Processing Loop never branches on which one is
// configured.
type Recognizer interface {
	RecognizeFace(ctx context.Context, frame gocv.Mat, faceBox model.Box, embedding []float32) (Result, error)
	Close() error
}

// NewRecognizer builds the recognizer named by cfg.Model, failing fast at
// startup on an unrecognized value rather than silently falling back, per
// spec.md §9's open-question resolution.
func NewRecognizer(cfg config.FaceConfig, store EmbeddingStore) (Recognizer, error) {
	switch cfg.Model {
	case "LBPH", "Fisher", "Eigen":
		classical, err := loadClassicalRecognizer(ClassicalModel(cfg.Model), cfg.ModelPath, cfg.WidthCrop, cfg.HeightCrop, cfg.MaxScoreConversion, cfg.MinScore)
		if err != nil {
			return nil, err
		}
		return &classicalAdapter{r: classical}, nil
	case "DOODS_EU":
		return &embeddingAdapter{r: newEuclideanRecognizer(store, cfg.MinScore)}, nil
	case "DOODS_COS":
		return &embeddingAdapter{r: newCosineRecognizer(store, cfg.MinScore)}, nil
	default:
		return nil, fmt.Errorf("face_recognition_model %q is not one of LBPH, Fisher, Eigen, DOODS_EU, DOODS_COS", cfg.Model)
	}
}

type classicalAdapter struct {
	r *classicalRecognizer
}

func (a *classicalAdapter) RecognizeFace(_ context.Context, frame gocv.Mat, faceBox model.Box, _ []float32) (Result, error) {
	return a.r.Recognize(frame, faceBox)
}

func (a *classicalAdapter) Close() error { return a.r.Close() }

type embeddingScorer interface {
	Recognize(ctx context.Context, embedding []float32) (Result, error)
}

type embeddingAdapter struct {
	r embeddingScorer
}

func (a *embeddingAdapter) RecognizeFace(ctx context.Context, _ gocv.Mat, _ model.Box, embedding []float32) (Result, error) {
	if len(embedding) == 0 {
		return Result{}, nil
	}
	return a.r.Recognize(ctx, embedding)
}

func (a *embeddingAdapter) Close() error { return nil }

// PromoteSubLabel applies spec.md §4.6's largest-area-wins rule: among the
// face attributes accepted this frame, only the one with the largest area
// updates the track's sub_label/sub_label_score. candidates must already be
// filtered to Result.Accepted().
type Candidate struct {
	Attribute model.Attribute
	Area      int
	Result    Result
	Label     string
}

func PromoteSubLabel(track *model.TrackedObject, candidates []Candidate) {
	if len(candidates) == 0 {
		track.SubLabelCur = ""
		return
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Area > best.Area {
			best = c
		}
	}
	track.SubLabel = best.Label
	track.SubLabelScore = float32(best.Result.Confidence)
	track.SubLabelCur = best.Label
}

// TrainingSideband decides whether an unlabeled face should be captured for
// future training and generates the corresponding FaceRecord and save path,
// per spec.md §4.6's "Training sideband" paragraph.
type TrainingSideband struct {
	FacesDir      string
	Camera        string
	UnknownOnly   bool
}

// sentinelFile is the flag file whose presence enables training capture.
const sentinelFile = "captureenabled"

func (s TrainingSideband) captureEnabled() bool {
	_, err := os.Stat(filepath.Join(s.FacesDir, sentinelFile))
	return err == nil
}

// ShouldCapture reports whether this face should be queued for training,
// given which camera observed it and whether it was already recognized.
func (s TrainingSideband) ShouldCapture(camera string, trainingCamera string, recognizedID int) bool {
	if !s.captureEnabled() {
		return false
	}
	if trainingCamera != "Any" && trainingCamera != camera {
		return false
	}
	if s.UnknownOnly && recognizedID > 0 {
		return false
	}
	return true
}

// NewFaceID generates the "{now}-{6 random lowercase/digits}" id spec.md
// §4.6 specifies for captured training samples.
func NewFaceID(now time.Time) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", fmt.Errorf("generate face id suffix: %w", err)
		}
		suffix[i] = alphabet[n.Int64()]
	}
	return fmt.Sprintf("%d-%s", now.Unix(), suffix), nil
}

// CropObjectKey returns the MinIO object key a captured face crop is saved
// under.
func (s TrainingSideband) CropObjectKey(faceID string) string {
	return fmt.Sprintf("faces/%s.npy", faceID)
}
