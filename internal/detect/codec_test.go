package detect

import (
	"testing"

	"github.com/your-org/camvision/internal/model"
)

func TestEncodeDecodeMatrixRoundTrip(t *testing.T) {
	rows := []row{
		{label: 2, score: 0.91, x1: 0.1, y1: 0.1, x2: 0.5, y2: 0.5},
		{label: 0, score: 0.55, x1: 0.2, y1: 0.2, x2: 0.4, y2: 0.4},
	}
	buf := EncodeMatrix(rows, ObjectCols)
	if len(buf) != MaxRows*ObjectCols*4 {
		t.Fatalf("encoded buffer length = %d, want %d", len(buf), MaxRows*ObjectCols*4)
	}

	decoded := decodeMatrix(buf, ObjectCols)
	if len(decoded) != 2 {
		t.Fatalf("decoded %d rows, want 2", len(decoded))
	}
	if decoded[0].score != 0.91 || decoded[1].score != 0.55 {
		t.Fatalf("decoded rows not sorted by descending score: %+v", decoded)
	}
}

func TestEncodeMatrixTruncatesToMaxRows(t *testing.T) {
	rows := make([]row, MaxRows+5)
	for i := range rows {
		rows[i] = row{score: float32(MaxRows+5-i) / 100}
	}
	buf := EncodeMatrix(rows, ObjectCols)
	decoded := decodeMatrix(buf, ObjectCols)
	if len(decoded) != MaxRows {
		t.Fatalf("decoded %d rows, want %d", len(decoded), MaxRows)
	}
}

func TestEncodeDecodeMatrixCarriesEmbedding(t *testing.T) {
	emb := make([]float32, 128)
	for i := range emb {
		emb[i] = float32(i) / 128
	}
	rows := []row{{label: 0, score: 0.8, x1: 0, y1: 0, x2: 1, y2: 1, embedding: emb}}
	buf := EncodeMatrix(rows, FaceCols)
	decoded := decodeMatrix(buf, FaceCols)
	if len(decoded) != 1 {
		t.Fatalf("decoded %d rows, want 1", len(decoded))
	}
	if len(decoded[0].embedding) != 128 {
		t.Fatalf("decoded embedding length = %d, want 128", len(decoded[0].embedding))
	}
	if decoded[0].embedding[64] != emb[64] {
		t.Fatalf("embedding[64] = %v, want %v", decoded[0].embedding[64], emb[64])
	}
}

func TestDenormalizeBoxScalesToFrame(t *testing.T) {
	region := model.Region{Box: model.Box{X1: 100, Y1: 100, X2: 300, Y2: 300}}
	box, ok := DenormalizeBox(0.0, 0.0, 0.5, 0.5, region, 640, 480)
	if !ok {
		t.Fatalf("expected box to be kept")
	}
	if box.X1 != 100 || box.Y1 != 100 {
		t.Fatalf("box min corner = (%d,%d), want (100,100)", box.X1, box.Y1)
	}
	if box.X2 != 200 || box.Y2 != 200 {
		t.Fatalf("box max corner = (%d,%d), want (200,200)", box.X2, box.Y2)
	}
}

func TestDenormalizeBoxDropsOutOfFrame(t *testing.T) {
	region := model.Region{Box: model.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}}
	_, ok := DenormalizeBox(1.0, 1.0, 1.0, 1.0, region, 10, 10)
	if ok {
		t.Fatalf("expected box pinned to the frame edge to be dropped")
	}
}
