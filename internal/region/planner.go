// Package region implements the Region Planner: turning motion/object
// boxes into the fixed-size square regions handed to a detector, and the
// camera-shape cluster math used to decide how many such regions a frame
// needs.
package region

import (
	"fmt"
	"math"
	"sort"

	"github.com/your-org/camvision/internal/model"
)

// MinRegionSize returns the smallest region edge a model of size w×h can be
// usefully fed, rounded up to a multiple of 4 (required by most detector
// preprocessors that tile on 4-pixel boundaries).
func MinRegionSize(modelW, modelH int) int {
	m := modelW
	if modelH > m {
		m = modelH
	}
	size := (m + 1) / 2
	return roundUp4(size)
}

func roundUp4(v int) int {
	if r := v % 4; r != 0 {
		v += 4 - r
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CalculateRegion returns a square region of at least minSize per side,
// centered on box, padded by multiplier, clamped to the frame, and aligned
// to a 4-pixel grid. This is the single primitive behind both general
// object-cluster regions (multiplier 1.2) and tracked-person face regions
// (multiplier 1.0).
func CalculateRegion(frameW, frameH int, box model.Box, minSize int, multiplier float64) model.Box {
	w := box.Width()
	h := box.Height()

	longest := w
	if h > longest {
		longest = h
	}

	size := int(float64(longest) * multiplier)
	if size < minSize {
		size = minSize
	}
	size = roundUp4(size)
	if size > frameW {
		size = roundUp4(frameW)
	}
	if size > frameH {
		size = roundUp4(frameH)
	}

	cx := (box.X1 + box.X2) / 2
	cy := (box.Y1 + box.Y2) / 2

	x1 := cx - size/2
	y1 := cy - size/2

	x1 = clampInt(x1, 0, maxInt(0, frameW-size))
	y1 = clampInt(y1, 0, maxInt(0, frameH-size))

	return model.Box{X1: x1, Y1: y1, X2: x1 + size, Y2: y1 + size}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ClusterBoundary returns the rectangle within which another box could sit
// and still fit into a legal region together with box: the max region size
// the pair could share, which grows with box's own area and is never below
// minRegion, per original_source's get_cluster_boundary (box is treated as ~10% of its
// region's area).
func ClusterBoundary(box model.Box, minRegion int) model.Box {
	w := box.Width()
	h := box.Height()

	maxRegionArea := math.Abs(float64(w*h)) / 0.1
	maxRegionSize := math.Sqrt(maxRegionArea)
	if float64(minRegion) > maxRegionSize {
		maxRegionSize = float64(minRegion)
	}

	cx := float64(box.X1+box.X2) / 2
	cy := float64(box.Y1+box.Y2) / 2

	maxXDist := maxRegionSize - float64(w)/2*1.1
	maxYDist := maxRegionSize - float64(h)/2*1.1

	return model.Box{
		X1: int(cx - maxXDist),
		Y1: int(cy - maxYDist),
		X2: int(cx + maxXDist),
		Y2: int(cy + maxYDist),
	}
}

// boxInside reports whether inner lies entirely within outer, inclusive of
// shared edges.
func boxInside(outer, inner model.Box) bool {
	return inner.X1 >= outer.X1 && inner.Y1 >= outer.Y1 && inner.X2 <= outer.X2 && inner.Y2 <= outer.Y2
}

// ClusterCandidates greedily groups boxes: for each yet-unclustered box, its
// cluster boundary determines which other boxes could join it, but a
// candidate only actually joins if doing so keeps every member's area at
// least 5% of the resulting region's area (once that region exceeds
// minRegion) — otherwise a tiny box would get swallowed into a region sized
// for a much larger neighbor. Mirrors original_source's
// get_cluster_candidates.
func ClusterCandidates(frameW, frameH, minRegion int, boxes []model.Box) [][]int {
	n := len(boxes)
	used := make([]bool, n)
	var clusters [][]int

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		cluster := []int{i}
		used[i] = true
		boundary := ClusterBoundary(boxes[i], minRegion)

		for j := 0; j < n; j++ {
			if used[j] || !boxInside(boundary, boxes[j]) {
				continue
			}

			potential := append(append([]int{}, cluster...), j)
			regionBox := ClusterRegion(frameW, frameH, minRegion, potential, boxes).Box

			shouldCluster := true
			if regionBox.Width() > minRegion {
				regionArea := regionBox.Area()
				for _, idx := range potential {
					if float64(boxes[idx].Area())/float64(regionArea) < 0.05 {
						shouldCluster = false
						break
					}
				}
			}

			if shouldCluster {
				cluster = append(cluster, j)
				used[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}

	return dedupClusters(clusters)
}

// dedupClusters drops duplicate clusters (same membership, any order),
// matching original_source's "return the unique clusters only" step.
func dedupClusters(clusters [][]int) [][]int {
	seen := make(map[string]bool, len(clusters))
	result := make([][]int, 0, len(clusters))
	for _, c := range clusters {
		sorted := append([]int{}, c...)
		sort.Ints(sorted)
		key := fmt.Sprint(sorted)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, sorted)
	}
	return result
}

// ClusterRegion computes the single detector region covering every box in
// a cluster, per CalculateRegion with the general 1.2x padding multiplier.
func ClusterRegion(frameW, frameH, minRegion int, cluster []int, boxes []model.Box) model.Region {
	if len(cluster) == 0 {
		return model.Region{}
	}
	union := boxes[cluster[0]]
	for _, idx := range cluster[1:] {
		b := boxes[idx]
		if b.X1 < union.X1 {
			union.X1 = b.X1
		}
		if b.Y1 < union.Y1 {
			union.Y1 = b.Y1
		}
		if b.X2 > union.X2 {
			union.X2 = b.X2
		}
		if b.Y2 > union.Y2 {
			union.Y2 = b.Y2
		}
	}
	return model.Region{
		Box:    CalculateRegion(frameW, frameH, union, minRegion, 1.2),
		Source: "cluster",
	}
}

// StartupScanRegion returns the counter-th tile of a 3x3 grid covering the
// whole frame, used before any motion has been observed. ok is false once
// counter reaches 9.
func StartupScanRegion(frameW, frameH, minRegion, counter int) (model.Region, bool) {
	if counter < 0 || counter >= 9 {
		return model.Region{}, false
	}
	col := counter / 3
	row := counter % 3

	xmin := (frameW / 3) * col
	ymin := (frameH / 3) * row
	xmax := xmin + frameW/3
	ymax := ymin + frameH/3

	box := model.Box{X1: xmin, Y1: ymin, X2: xmax, Y2: ymax}
	return model.Region{
		Box:    CalculateRegion(frameW, frameH, box, minRegion, 1.0),
		Source: "startup_scan",
	}, true
}
