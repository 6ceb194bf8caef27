package facerec

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/your-org/camvision/internal/imageutil"
	"github.com/your-org/camvision/internal/model"
)

const recognizerInputSide = 360

// ClassicalModel selects which OpenCV face recognizer algorithm backs a
// classicalRecognizer.
type ClassicalModel string

const (
	ModelLBPH   ClassicalModel = "LBPH"
	ModelFisher ClassicalModel = "Fisher"
	ModelEigen  ClassicalModel = "Eigen"
)

// classicalFaceRecognizer abstracts over gocv's three grayscale face
// recognizer algorithms, all exposing the same predict-by-label contract.
type classicalFaceRecognizer interface {
	PredictExtended(frame gocv.Mat) (label int, confidence float32)
	Close() error
}

// classicalRecognizer implements the LBPH/Fisher/Eigen scoring model: crop
// to the configured sub-rectangle, normalize, run the trained recognizer,
// convert its raw distance into a [0,1] similarity.
type classicalRecognizer struct {
	rec                classicalFaceRecognizer
	widthCrop          float64
	heightCrop         float64
	maxScoreConversion float64
	minScore           float64
}

func loadClassicalRecognizer(model ClassicalModel, modelPath string, widthCrop, heightCrop, maxScoreConversion, minScore float64) (*classicalRecognizer, error) {
	var rec classicalFaceRecognizer
	switch model {
	case ModelLBPH:
		r := contrib.NewLBPHFaceRecognizer()
		rec = &r
	case ModelFisher:
		r := contrib.NewFisherFaceRecognizer()
		rec = &r
	case ModelEigen:
		r := contrib.NewEigenFaceRecognizer()
		rec = &r
	default:
		return nil, fmt.Errorf("unsupported classical face recognition model %q", model)
	}

	loadFile(rec, modelPath)

	return &classicalRecognizer{
		rec:                rec,
		widthCrop:          widthCrop,
		heightCrop:         heightCrop,
		maxScoreConversion: maxScoreConversion,
		minScore:           minScore,
	}, nil
}

// loadFile calls the recognizer-specific LoadFile method. gocv's three
// recognizer types don't share an interface for it, so each case is spelled
// out explicitly.
func loadFile(rec classicalFaceRecognizer, path string) {
	switch r := rec.(type) {
	case *contrib.LBPHFaceRecognizer:
		r.LoadFile(path)
	case *contrib.FisherFaceRecognizer:
		r.LoadFile(path)
	case *contrib.EigenFaceRecognizer:
		r.LoadFile(path)
	}
}

func (c *classicalRecognizer) Close() error {
	return c.rec.Close()
}

// Recognize crops frame to box, prepares it per spec.md §4.6, and returns
// the matched label id plus normalized confidence.
func (c *classicalRecognizer) Recognize(frame gocv.Mat, box model.Box) (Result, error) {
	crop := imageutil.CropRegion(frame, box)
	defer crop.Close()

	w := crop.Cols()
	h := crop.Rows()
	cw := int(float64(w) * c.widthCrop)
	ch := int(float64(h) * c.heightCrop)
	if cw <= 0 || ch <= 0 {
		return Result{}, nil
	}
	x0 := (w - cw) / 2
	y0 := (h - ch) / 2
	sub := crop.Region(image.Rect(x0, y0, x0+cw, y0+ch))
	defer sub.Close()

	resized := imageutil.ResizeCubic(sub, recognizerInputSide, recognizerInputSide)
	defer resized.Close()

	gray := imageutil.GrayEqualized(resized)
	defer gray.Close()

	id, rawConf := c.rec.PredictExtended(gray)
	if id <= 0 {
		return Result{}, nil
	}

	conf := (c.maxScoreConversion - float64(rawConf)) / c.maxScoreConversion
	if conf < c.minScore {
		return Result{}, nil
	}
	return Result{LabelID: id, Confidence: conf}, nil
}
