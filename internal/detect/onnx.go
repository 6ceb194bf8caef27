package detect

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// strides and anchorsPerStride mirror the det_10g-style anchor layout the
// teacher's RetinaFace detector decodes; both the object and face models
// reuse the same anchor math, generalized to a configurable label count and
// embedding dimension.
var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// anchorModel is the shared ONNX session shape: three score/box/extra
// output triples at strides 8/16/32, one input tensor.
type anchorModel struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	inputW, inputH int
	threshold     float32
}

func newAnchorModel(modelPath string, inputW, inputH int, extraCols int, threshold float32, opts *ort.SessionOptions) (*anchorModel, error) {
	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	fw8, fh8 := inputW/8, inputH/8
	fw16, fh16 := inputW/16, inputH/16
	fw32, fh32 := inputW/32, inputH/32

	n8 := fw8 * fh8 * anchorsPerStride
	n16 := fw16 * fh16 * anchorsPerStride
	n32 := fw32 * fh32 * anchorsPerStride

	type spec struct {
		name  string
		shape ort.Shape
	}
	specs := []spec{
		{"scores8", ort.NewShape(int64(n8), 1)},
		{"scores16", ort.NewShape(int64(n16), 1)},
		{"scores32", ort.NewShape(int64(n32), 1)},
		{"boxes8", ort.NewShape(int64(n8), 4)},
		{"boxes16", ort.NewShape(int64(n16), 4)},
		{"boxes32", ort.NewShape(int64(n32), 4)},
	}
	if extraCols > 0 {
		specs = append(specs,
			spec{"extra8", ort.NewShape(int64(n8), int64(extraCols))},
			spec{"extra16", ort.NewShape(int64(n16), int64(extraCols))},
			spec{"extra32", ort.NewShape(int64(n32), int64(extraCols))},
		)
	}

	outputNames := make([]string, len(specs))
	outputTensors := make([]*ort.Tensor[float32], len(specs))
	outputValues := make([]ort.Value, len(specs))
	for i, s := range specs {
		outputNames[i] = s.name
		t, err := ort.NewEmptyTensor[float32](s.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", s.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, outputNames,
		[]ort.Value{inputTensor}, outputValues, opts)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &anchorModel{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		inputW:        inputW,
		inputH:        inputH,
		threshold:     threshold,
	}, nil
}

func (m *anchorModel) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	for _, t := range m.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// run executes the session on tensor (CHW float32 [3,inputH,inputW]) and
// decodes anchor rows normalized to [0,1] within the input window. When
// extraCols > 0 each row's extra output is copied into row.embedding: the
// object model reads its label index from it (see ObjectModel.InferRaw),
// the face model keeps it as the embedding.
func (m *anchorModel) run(tensor []float32, extraCols int) ([]row, error) {
	dst := m.inputTensor.GetData()
	copy(dst, tensor)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	var rows []row
	for si, stride := range strides {
		scores := m.outputTensors[si].GetData()
		boxes := m.outputTensors[si+3].GetData()
		var extra []float32
		if extraCols > 0 {
			extra = m.outputTensors[si+6].GetData()
		}

		fw := m.inputW / stride
		fh := m.inputH / stride

		idx := 0
		for cy := 0; cy < fh; cy++ {
			for cx := 0; cx < fw; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					score := scores[idx]
					if score >= m.threshold {
						ax := float32(cx * stride)
						ay := float32(cy * stride)
						st := float32(stride)

						x1 := (ax - boxes[idx*4+0]*st) / float32(m.inputW)
						y1 := (ay - boxes[idx*4+1]*st) / float32(m.inputH)
						x2 := (ax + boxes[idx*4+2]*st) / float32(m.inputW)
						y2 := (ay + boxes[idx*4+3]*st) / float32(m.inputH)

						r := row{score: score, x1: x1, y1: y1, x2: x2, y2: y2}
						if extraCols > 0 {
							vec := make([]float32, extraCols)
							copy(vec, extra[idx*extraCols:idx*extraCols+extraCols])
							r.embedding = vec
							r.label = 0
						}
						rows = append(rows, r)
					}
					idx++
				}
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })
	return rows, nil
}

func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

// ObjectModel decodes labeled object boxes with no embedding payload.
type ObjectModel struct {
	*anchorModel
	labels []string
}

func NewObjectModel(modelPath string, labels []string, inputW, inputH int, threshold float32, opts *ort.SessionOptions) (*ObjectModel, error) {
	m, err := newAnchorModel(modelPath, inputW, inputH, 1, threshold, opts)
	if err != nil {
		return nil, err
	}
	return &ObjectModel{anchorModel: m, labels: labels}, nil
}

// hwcUint8ToCHWFloat32 converts a raw BGR uint8 HWC buffer (the wire format
// spec.md §6 specifies: uint8 [1,H,W,3]) into a mean/std-normalized CHW
// float32 tensor ready for the ONNX session, matching the teacher's
// imageToFloat32CHW normalization constants.
func hwcUint8ToCHWFloat32(data []byte, w, h int) []float32 {
	planeSize := w * h
	out := make([]float32, 3*planeSize)
	for i := 0; i < planeSize && i*3+2 < len(data); i++ {
		b := float32(data[i*3+0])
		g := float32(data[i*3+1])
		r := float32(data[i*3+2])
		out[i] = (r - 127.5) / 128.0
		out[planeSize+i] = (g - 127.5) / 128.0
		out[2*planeSize+i] = (b - 127.5) / 128.0
	}
	return out
}

func (m *ObjectModel) InferRaw(tensor []float32) ([]row, error) {
	rows, err := m.run(tensor, 1)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if len(rows[i].embedding) > 0 {
			rows[i].label = rows[i].embedding[0]
		}
		rows[i].embedding = nil
	}
	return rows, nil
}

// Labels returns the model's label set, indexed by row.label.
func (m *ObjectModel) Labels() []string { return m.labels }

// InferHWC preprocesses a raw uint8 HWC buffer and runs inference, the
// entry point both the Worker and LocalDetector call.
func (m *ObjectModel) InferHWC(raw []byte) ([]row, error) {
	return m.InferRaw(hwcUint8ToCHWFloat32(raw, m.inputW, m.inputH))
}

// FaceModel decodes face boxes plus a 128-float embedding per row.
type FaceModel struct {
	*anchorModel
}

const FaceEmbeddingDim = 128

func NewFaceModel(modelPath string, inputW, inputH int, threshold float32, opts *ort.SessionOptions) (*FaceModel, error) {
	m, err := newAnchorModel(modelPath, inputW, inputH, FaceEmbeddingDim, threshold, opts)
	if err != nil {
		return nil, err
	}
	return &FaceModel{anchorModel: m}, nil
}

func (m *FaceModel) InferRaw(tensor []float32) ([]row, error) {
	rows, err := m.run(tensor, FaceEmbeddingDim)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		normalizeL2(rows[i].embedding)
	}
	return rows, nil
}

// InferHWC preprocesses a raw uint8 HWC buffer and runs inference.
func (m *FaceModel) InferHWC(raw []byte) ([]row, error) {
	return m.InferRaw(hwcUint8ToCHWFloat32(raw, m.inputW, m.inputH))
}
