package detect

import (
	"testing"

	"github.com/your-org/camvision/internal/model"
)

func TestConsolidateDropsContainedDetection(t *testing.T) {
	big := model.Detection{Label: "person", Score: 0.9, Box: model.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	big.Area = big.Box.Area()
	small := model.Detection{Label: "person", Score: 0.6, Box: model.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}}
	small.Area = small.Box.Area()

	out := Consolidate([]model.Detection{big, small})
	if len(out) != 1 {
		t.Fatalf("Consolidate kept %d detections, want 1", len(out))
	}
	if out[0].Score != 0.9 {
		t.Fatalf("Consolidate kept the wrong detection: %+v", out[0])
	}
}

func TestConsolidateKeepsDisjointDetections(t *testing.T) {
	a := model.Detection{Label: "person", Score: 0.8, Box: model.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}}
	a.Area = a.Box.Area()
	b := model.Detection{Label: "person", Score: 0.7, Box: model.Box{X1: 200, Y1: 200, X2: 250, Y2: 250}}
	b.Area = b.Box.Area()

	out := Consolidate([]model.Detection{a, b})
	if len(out) != 2 {
		t.Fatalf("Consolidate kept %d detections, want 2", len(out))
	}
}

func TestConsolidateIgnoresDifferentLabels(t *testing.T) {
	a := model.Detection{Label: "person", Score: 0.8, Box: model.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	a.Area = a.Box.Area()
	b := model.Detection{Label: "car", Score: 0.6, Box: model.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}}
	b.Area = b.Box.Area()

	out := Consolidate([]model.Detection{a, b})
	if len(out) != 2 {
		t.Fatalf("Consolidate kept %d detections, want 2 (different labels must not consolidate)", len(out))
	}
}
