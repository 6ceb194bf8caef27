package region

import (
	"testing"

	"github.com/your-org/camvision/internal/model"
)

func TestMinRegionSizeRoundsUpTo4(t *testing.T) {
	got := MinRegionSize(320, 320)
	if got%4 != 0 {
		t.Fatalf("MinRegionSize(320,320) = %d, not a multiple of 4", got)
	}
	if got < 160 {
		t.Fatalf("MinRegionSize(320,320) = %d, expected >= 160", got)
	}
}

func TestCalculateRegionClampsToFrame(t *testing.T) {
	box := model.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	got := CalculateRegion(100, 100, box, 200, 1.2)

	if got.X1 < 0 || got.Y1 < 0 || got.X2 > 100 || got.Y2 > 100 {
		t.Fatalf("region %+v escapes frame bounds 100x100", got)
	}
	if got.Width() != got.Height() {
		t.Fatalf("region %+v is not square", got)
	}
}

func TestCalculateRegionIs4Aligned(t *testing.T) {
	box := model.Box{X1: 50, Y1: 50, X2: 90, Y2: 130}
	got := CalculateRegion(1920, 1080, box, 160, 1.2)

	if got.Width()%4 != 0 {
		t.Fatalf("region width %d not 4-aligned", got.Width())
	}
}

func TestClusterCandidatesGroupsOverlapping(t *testing.T) {
	boxes := []model.Box{
		{X1: 0, Y1: 0, X2: 20, Y2: 20},
		{X1: 15, Y1: 15, X2: 35, Y2: 35}, // overlaps box 0's boundary
		{X1: 500, Y1: 500, X2: 520, Y2: 520}, // isolated
	}

	groups := ClusterCandidates(1000, 1000, 160, boxes)
	if len(groups) != 2 {
		t.Fatalf("expected 2 clusters, got %d: %+v", len(groups), groups)
	}
}

func TestStartupScanRegionCoversNineTiles(t *testing.T) {
	seen := 0
	for i := 0; i < 12; i++ {
		_, ok := StartupScanRegion(1920, 1080, 160, i)
		if i < 9 && !ok {
			t.Fatalf("StartupScanRegion(%d) should be valid", i)
		}
		if i >= 9 && ok {
			t.Fatalf("StartupScanRegion(%d) should be exhausted", i)
		}
		if ok {
			seen++
		}
	}
	if seen != 9 {
		t.Fatalf("expected 9 valid startup regions, got %d", seen)
	}
}

func TestClusterCandidatesRejectsCandidateBelow5PercentOfRegion(t *testing.T) {
	boxes := []model.Box{
		{X1: 0, Y1: 0, X2: 140, Y2: 140},     // large box, drives a region well over minRegion
		{X1: 130, Y1: 130, X2: 135, Y2: 135}, // tiny box, sits inside the large box's cluster boundary
	}

	groups := ClusterCandidates(1000, 1000, 160, boxes)
	if len(groups) != 2 {
		t.Fatalf("expected the tiny box kept out of the large box's cluster, got %d groups: %+v", len(groups), groups)
	}
}

func TestClusterBoundaryExpandsSmallBoxToMinRegion(t *testing.T) {
	box := model.Box{X1: 100, Y1: 100, X2: 110, Y2: 110}
	got := ClusterBoundary(box, 160)
	if got.Width() < 160 || got.Height() < 160 {
		t.Fatalf("ClusterBoundary did not expand to min region: %+v", got)
	}
}
