// Package detect implements the Detector Workers and the Remote Detector
// Clients that call them: a fixed-shape request/reply protocol over NATS
// standing in for spec.md's shared-memory-plus-ticket-event design.
package detect

import (
	"context"

	"github.com/your-org/camvision/internal/model"
)

// Kind selects which fixed-output-matrix shape and model a detector
// instance serves.
type Kind string

const (
	KindObject Kind = "object"
	KindFace   Kind = "face"
)

// Row count shared by both kinds: the original's ticketed shared buffer is
// always 20 rows, sorted by descending score with trailing rows zeroed.
const MaxRows = 20

// ObjectCols is (label, score, x1, y1, x2, y2).
const ObjectCols = 6

// FaceCols is (label, score, x1, y1, x2, y2) plus a 128-float embedding.
const FaceCols = 6 + 128

// Detector is satisfied by both a LocalDetector (in-process ONNX session)
// and a RemoteDetector (NATS RPC client), so the Processing Loop never
// branches on transport.
type Detector interface {
	Detect(ctx context.Context, tensor []byte, region model.Region, frameW, frameH int) ([]model.Detection, error)
}

// FaceDetector is the face-specific analogue, returning embeddings too.
type FaceDetector interface {
	DetectFaces(ctx context.Context, tensor []byte, region model.Region, frameW, frameH int) ([]model.FaceDetection, error)
}
