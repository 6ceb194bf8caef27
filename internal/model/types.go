// Package model holds the data types shared across the capture, detector,
// processing and face-store components.
package model

import "time"

// Box is a pixel-space rectangle, x1/y1 inclusive, x2/y2 exclusive.
type Box struct {
	X1, Y1, X2, Y2 int
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }
func (b Box) Area() int   { return b.Width() * b.Height() }

// Contains reports whether other lies strictly inside b.
func (b Box) Contains(other Box) bool {
	return other.X1 > b.X1 && other.Y1 > b.Y1 && other.X2 < b.X2 && other.Y2 < b.Y2
}

// Frame is a reference to a single decoded YUV4:2:0 frame resident in the
// Frame Store, not the pixel data itself.
type Frame struct {
	Camera    string
	Ref       string // Frame Store slab name
	Time      time.Time
	Width     int
	Height    int
}

// Region is a square (or near-square) sub-window of a frame that was handed
// to a detector.
type Region struct {
	Box   Box
	// Source names what produced the region: "cluster" for the Region
	// Planner's motion/object clustering, "startup_scan" for the 3x3
	// startup scan, "face" for a tracked-person face region. Used only for
	// logging/metrics.
	Source string
}

// Detection is one object detector result, already denormalized into frame
// pixel coordinates.
type Detection struct {
	Label      string
	Score      float32
	Box        Box
	Region     Region
	Area       int
	Ratio      float64
}

// FaceDetection is one face detector result: a box plus a 128-float
// embedding (DOODS_EU/DOODS_COS path) — Embedding is nil for detector
// backends that only localize faces without embedding them.
type FaceDetection struct {
	Box       Box
	Score     float32
	Embedding []float32
}

// Attribute is a detector result for a track sub-region (e.g. "face",
// "license_plate") attached to a TrackedObject because its box falls
// strictly inside the track's box.
type Attribute struct {
	Label string
	Score float32
	Box   Box
}

// TrackedObject is one persistent object across frames, per spec.md §3.
type TrackedObject struct {
	ID              string
	Label           string
	Score           float32
	Box             Box
	Area            int
	Ratio           float64
	Region          Region
	Estimate        Box // box of the last matched detection; not smoothed or predicted
	MotionlessCount int
	Disappeared     int
	FrameTime       time.Time
	Attributes      []Attribute
	SubLabel        string
	SubLabelScore   float32
	SubLabelCur     string // sub_label accepted this frame, empty when none was
	Stationary      bool
}

// FaceLabel is a named identity a FaceRecord embedding can resolve to.
type FaceLabel struct {
	ID    int
	Label string
}

// FaceRecord is one stored face: either a labeled reference embedding or a
// captured-for-training sample with LabelID == 0.
type FaceRecord struct {
	ID          string
	LabelID     int
	CaptureTime time.Time
	Embedding   []float32
}

// FrameTask is the payload published on the frames.<camera> subject.
type FrameTask struct {
	Camera    string    `json:"camera"`
	FrameTime time.Time `json:"frame_time"`
	FrameRef  string    `json:"frame_ref"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// ResultPacket is the payload published on the events.<camera> subject.
type ResultPacket struct {
	Camera      string                   `json:"camera"`
	FrameTime   time.Time                `json:"frame_time"`
	Detections  map[string]TrackedObject `json:"detections"`
	MotionBoxes []Box                    `json:"motion_boxes"`
	Regions     []Region                 `json:"regions"`
}

// FaceCaptureMsg is the 5-tuple payload published on the faces.capture
// subject, consumed by the single-writer Face Store Writer.
type FaceCaptureMsg struct {
	Type        string    `json:"type"` // always "face"
	ID          string    `json:"id"`
	LabelID     int       `json:"label_id"`
	CaptureTime time.Time `json:"capture_time"`
	Embedding   []float32 `json:"embedding"`
}
