// Package imageutil converts raw YUV4:2:0 frame buffers into the BGR Mats
// the detector preprocessors and face recognizer need, using OpenCV
// bindings rather than a hand-rolled color-space transform.
package imageutil

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/your-org/camvision/internal/model"
)

// YUVToBGR decodes a full-frame I420 (YUV4:2:0 planar) buffer into a BGR
// Mat. Caller owns the returned Mat and must Close it.
func YUVToBGR(data []byte, width, height int) (gocv.Mat, error) {
	expected := width * height * 3 / 2
	if len(data) < expected {
		return gocv.Mat{}, fmt.Errorf("yuv buffer too small: got %d want %d", len(data), expected)
	}

	yuv, err := gocv.NewMatFromBytes(height*3/2, width, gocv.MatTypeCV8UC1, data[:expected])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("wrap yuv bytes: %w", err)
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRI420)
	return bgr, nil
}

// CropRegion returns the sub-Mat covering box, clamped to frame bounds.
// Caller owns the returned Mat.
func CropRegion(frame gocv.Mat, box model.Box) gocv.Mat {
	w := frame.Cols()
	h := frame.Rows()

	x1 := clamp(box.X1, 0, w)
	y1 := clamp(box.Y1, 0, h)
	x2 := clamp(box.X2, x1, w)
	y2 := clamp(box.Y2, y1, h)

	rect := image.Rect(x1, y1, x2, y2)
	region := frame.Region(rect)
	out := gocv.NewMat()
	region.CopyTo(&out)
	region.Close()
	return out
}

// ResizeCubic resizes a Mat to the given dimensions using bicubic
// interpolation, matching the original pipeline's cv2.resize(...,
// interpolation=cv2.INTER_CUBIC) calls for detector inputs and face crops.
func ResizeCubic(src gocv.Mat, width, height int) gocv.Mat {
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationCubic)
	return dst
}

// GrayEqualized converts a BGR Mat to grayscale and applies histogram
// equalization, the standard classical-face-recognizer preprocessing step.
func GrayEqualized(src gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	eq := gocv.NewMat()
	gocv.EqualizeHist(gray, &eq)
	gray.Close()
	return eq
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
