// Package motion implements frame-differencing motion detection over BGR
// Mats, the supplemented component from original_source/frigate's
// ImprovedMotionDetector (video.py step 2, "motion.detect(frame)").
package motion

import (
	"image"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/your-org/camvision/internal/model"
)

// Detector holds a running background average per camera and produces
// motion boxes by thresholding the absolute difference against it.
type Detector struct {
	contourArea int32
	threshold   int32
	improve     atomic.Bool

	background gocv.Mat
	hasBG      bool
}

func New(contourArea, threshold int, improveContrast bool) *Detector {
	d := &Detector{
		contourArea: int32(contourArea),
		threshold:   int32(threshold),
	}
	d.improve.Store(improveContrast)
	return d
}

// SetContourArea and SetThreshold allow the runtime toggles described in
// SPEC_FULL.md §5 to be adjusted without restarting the process.
func (d *Detector) SetContourArea(v int) { atomic.StoreInt32(&d.contourArea, int32(v)) }
func (d *Detector) SetThreshold(v int)   { atomic.StoreInt32(&d.threshold, int32(v)) }
func (d *Detector) SetImproveContrast(v bool) { d.improve.Store(v) }

// Close releases the background Mat.
func (d *Detector) Close() {
	if d.hasBG {
		d.background.Close()
	}
}

// Detect returns motion boxes found in frame (a BGR Mat) and updates the
// running background average.
func (d *Detector) Detect(frame gocv.Mat) []model.Box {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	if d.improve.Load() {
		clahe := gocv.NewCLAHE()
		defer clahe.Close()
		eq := gocv.NewMat()
		clahe.Apply(gray, &eq)
		gray.Close()
		gray = eq
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(21, 21), 0, 0, gocv.BorderDefault)

	if !d.hasBG {
		d.background = gocv.NewMat()
		blurred.CopyTo(&d.background)
		d.hasBG = true
		return nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(d.background, blurred, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, float32(atomic.LoadInt32(&d.threshold)), 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(thresh, &dilated, kernel)

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := float64(atomic.LoadInt32(&d.contourArea))
	var boxes []model.Box
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if gocv.ContourArea(c) < minArea {
			continue
		}
		r := gocv.BoundingRect(c)
		boxes = append(boxes, model.Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y})
	}

	// Running average: blend the new frame in slowly so a persistent but
	// stationary object fades out of the motion mask over time.
	gocv.AddWeighted(blurred, 0.05, d.background, 0.95, 0, &d.background)

	return boxes
}
