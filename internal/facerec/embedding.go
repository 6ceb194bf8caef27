package facerec

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/your-org/camvision/internal/model"
	"github.com/your-org/camvision/internal/storage"
)

// EmbeddingStore is the read side of the face store the embedding-based
// recognizers need: all labeled reference embeddings. The recognizers call
// LabeledEmbeddings on every Recognize; nothing is cached between calls.
type EmbeddingStore interface {
	LabeledEmbeddings(ctx context.Context) ([]model.FaceRecord, error)
}

var _ EmbeddingStore = (*storage.PostgresStore)(nil)

// euclideanRecognizer implements the DOODS_EU scoring model: nearest
// labeled embedding by Euclidean distance, conf = (2 - d_min) / 2.
type euclideanRecognizer struct {
	store    EmbeddingStore
	minScore float64
}

func newEuclideanRecognizer(store EmbeddingStore, minScore float64) *euclideanRecognizer {
	return &euclideanRecognizer{store: store, minScore: minScore}
}

func (r *euclideanRecognizer) Recognize(ctx context.Context, embedding []float32) (Result, error) {
	records, err := r.store.LabeledEmbeddings(ctx)
	if err != nil {
		return Result{}, err
	}

	best := Result{}
	dMin := math.MaxFloat64
	for _, rec := range records {
		d := euclideanDistance(embedding, rec.Embedding)
		if d < dMin {
			dMin = d
			best.LabelID = rec.LabelID
		}
	}
	if best.LabelID <= 0 {
		return Result{}, nil
	}
	best.Confidence = (2 - dMin) / 2
	if best.Confidence < r.minScore {
		return Result{}, nil
	}
	return best, nil
}

// cosineRecognizer implements the DOODS_COS scoring model: nearest labeled
// embedding by cosine similarity, conf = cos_max.
type cosineRecognizer struct {
	store    EmbeddingStore
	minScore float64
}

func newCosineRecognizer(store EmbeddingStore, minScore float64) *cosineRecognizer {
	return &cosineRecognizer{store: store, minScore: minScore}
}

func (r *cosineRecognizer) Recognize(ctx context.Context, embedding []float32) (Result, error) {
	records, err := r.store.LabeledEmbeddings(ctx)
	if err != nil {
		return Result{}, err
	}

	best := Result{}
	cosMax := -math.MaxFloat64
	for _, rec := range records {
		c := cosineSimilarity(embedding, rec.Embedding)
		if c > cosMax {
			cosMax = c
			best.LabelID = rec.LabelID
		}
	}
	if best.LabelID <= 0 {
		return Result{}, nil
	}
	best.Confidence = cosMax
	if best.Confidence < r.minScore {
		return Result{}, nil
	}
	return best, nil
}

func euclideanDistance(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	af := make([]float64, len(a))
	bf := make([]float64, len(b))
	for i := range a {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}
	diff := make([]float64, len(af))
	floats.SubTo(diff, af, bf)
	return floats.Norm(diff, 2)
}

func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	af := make([]float64, len(a))
	bf := make([]float64, len(b))
	for i := range a {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}
	dot := floats.Dot(af, bf)
	na := floats.Norm(af, 2)
	nb := floats.Norm(bf, 2)
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (na * nb)
}
