package detect

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/your-org/camvision/internal/model"
)

// NMS runs per-label non-maximum suppression using OpenCV's NMSBoxes,
// mirroring the original pipeline's cv2.dnn.NMSBoxes call.
func NMS(detections []model.Detection, scoreThreshold, iouThreshold float32) []model.Detection {
	byLabel := make(map[string][]int)
	for i, d := range detections {
		byLabel[d.Label] = append(byLabel[d.Label], i)
	}

	var kept []model.Detection
	for _, idxs := range byLabel {
		rects := make([]image.Rectangle, len(idxs))
		scores := make([]float32, len(idxs))
		for j, idx := range idxs {
			b := detections[idx].Box
			rects[j] = image.Rect(b.X1, b.Y1, b.X2, b.Y2)
			scores[j] = detections[idx].Score
		}
		keepIdx := gocv.NMSBoxes(rects, scores, scoreThreshold, iouThreshold)
		for _, ki := range keepIdx {
			kept = append(kept, detections[idxs[ki]])
		}
	}
	return kept
}

// Consolidate drops any detection that is at least 90% contained within a
// larger same-label detection, per get_consolidated_object_detections in
// the original pipeline.
func Consolidate(detections []model.Detection) []model.Detection {
	var out []model.Detection
	for i, d := range detections {
		contained := false
		for j, other := range detections {
			if i == j || other.Label != d.Label || other.Area <= d.Area {
				continue
			}
			if containment(d.Box, other.Box) >= 0.9 {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, d)
		}
	}
	return out
}

// containment returns the fraction of small's area that overlaps big.
func containment(small, big model.Box) float64 {
	ix1 := maxI(small.X1, big.X1)
	iy1 := maxI(small.Y1, big.Y1)
	ix2 := minI(small.X2, big.X2)
	iy2 := minI(small.Y2, big.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := float64(iw * ih)
	area := float64(small.Area())
	if area <= 0 {
		return 0
	}
	return inter / area
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
