package detect

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/your-org/camvision/internal/model"
)

// row is the internal representation of one detector output row before it
// is encoded into the fixed matrix wire format.
type row struct {
	label     float32
	score     float32
	x1, y1, x2, y2 float32 // normalized to [0,1] within the input region
	embedding []float32
}

// EncodeMatrix lays out rows sorted by descending score into a fixed
// MaxRows x cols row-major float32 matrix, zero-padding any unused rows.
// This is the wire payload for both the worker's reply and (for tests) a
// local detector's raw output.
func EncodeMatrix(rows []row, cols int) []byte {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	if len(rows) > MaxRows {
		rows = rows[:MaxRows]
	}

	buf := make([]byte, MaxRows*cols*4)
	for i := 0; i < MaxRows; i++ {
		if i >= len(rows) {
			continue // already zero
		}
		r := rows[i]
		vals := make([]float32, cols)
		vals[0] = r.label
		vals[1] = r.score
		vals[2] = r.x1
		vals[3] = r.y1
		vals[4] = r.x2
		vals[5] = r.y2
		for e, v := range r.embedding {
			if 6+e < cols {
				vals[6+e] = v
			}
		}
		for c := 0; c < cols; c++ {
			off := (i*cols + c) * 4
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(vals[c]))
		}
	}
	return buf
}

func decodeMatrix(buf []byte, cols int) []row {
	rows := make([]row, 0, MaxRows)
	for i := 0; i < MaxRows; i++ {
		base := i * cols * 4
		if base+cols*4 > len(buf) {
			break
		}
		get := func(c int) float32 {
			off := base + c*4
			return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
		}
		score := get(1)
		if score <= 0 {
			continue
		}
		r := row{
			label: get(0),
			score: score,
			x1:    get(2),
			y1:    get(3),
			x2:    get(4),
			y2:    get(5),
		}
		if cols > 6 {
			emb := make([]float32, cols-6)
			for e := range emb {
				emb[e] = get(6 + e)
			}
			r.embedding = emb
		}
		rows = append(rows, r)
	}
	return rows
}

// DenormalizeBox converts a [0,1]-normalized box within region back into
// frame pixel coordinates, clamping to the frame edge and dropping boxes
// whose min corner lands at or past the opposite edge — the same rule
// detect()/face_detect() apply in the original pipeline.
func DenormalizeBox(x1, y1, x2, y2 float32, region model.Region, frameW, frameH int) (model.Box, bool) {
	rw := float32(region.Box.Width())
	rh := float32(region.Box.Height())

	px1 := float32(region.Box.X1) + x1*rw
	py1 := float32(region.Box.Y1) + y1*rh
	px2 := float32(region.Box.X1) + x2*rw
	py2 := float32(region.Box.Y1) + y2*rh

	bx1 := clampF(px1, 0, float32(frameW-1))
	by1 := clampF(py1, 0, float32(frameH-1))
	bx2 := clampF(px2, 0, float32(frameW-1))
	by2 := clampF(py2, 0, float32(frameH-1))

	if bx1 >= float32(frameW-1) || by1 >= float32(frameH-1) {
		return model.Box{}, false
	}

	return model.Box{X1: int(bx1), Y1: int(by1), X2: int(bx2), Y2: int(by2)}, true
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
