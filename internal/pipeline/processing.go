// Package pipeline implements the Processing Loop: the per-camera
// goroutine that pulls a frame reference off the frames.<camera> queue,
// runs motion detection, decides which regions need an object/face
// detector call this frame, tracks the resulting detections across frames,
// attaches face attributes and recognizes them, and publishes the frame's
// ResultPacket to events.<camera>.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/detect"
	"github.com/your-org/camvision/internal/facerec"
	"github.com/your-org/camvision/internal/framestore"
	"github.com/your-org/camvision/internal/imageutil"
	"github.com/your-org/camvision/internal/model"
	"github.com/your-org/camvision/internal/motion"
	"github.com/your-org/camvision/internal/queue"
	"github.com/your-org/camvision/internal/region"
	"github.com/your-org/camvision/internal/track"
)

// Fixed NMS constants for per-label detection de-duplication, distinct from
// the Tracker's operator-tunable association IoU, per spec.md §4.5 step 8.
const (
	nmsScoreThreshold = 0.5
	nmsIoUThreshold   = 0.4
)

// LabelLookup resolves a face recognizer's numeric label id to its human
// name, satisfied by storage.PostgresStore's Face Store.
type LabelLookup interface {
	Label(ctx context.Context, id int) (*model.FaceLabel, error)
}

// Loop owns one camera's worth of Processing Loop state: the motion
// detector and Tracker are per-camera, the object/face detectors and
// publishers are shared across every camera a process serves.
type Loop struct {
	Camera string

	Frames   *framestore.Store
	Producer *queue.Producer
	Faces    *facerec.TrainingSideband
	Labels   LabelLookup

	ObjectDetector detect.Detector
	FaceDetector   detect.FaceDetector
	Recognizer     facerec.Recognizer

	Motion  *motion.Detector
	Tracker *track.Tracker

	ModelW, ModelH         int
	FaceModelW, FaceModelH int

	Objects    config.ObjectFilterConfig
	Stationary track.StationaryThreshold

	// ObjectsToTrack is the per-camera label allowlist (empty means allow
	// every label). FaceRecognitionArea selects between "regions" (detect
	// faces inside an object-detection region that contains a person) and
	// "tracked" (detect faces in a dedicated region per tracked person),
	// per spec.md §4.5 step 7.
	ObjectsToTrack      []string
	FaceRecognitionArea string

	// DetectionEnabled and MotionEnabled are the spec.md §4.5 steps 1-2
	// runtime toggles, mirroring motion.Detector's atomic tunables.
	DetectionEnabled atomic.Bool
	MotionEnabled    atomic.Bool

	scanCounter int
}

// SetDetectionEnabled and SetMotionEnabled allow the runtime toggles
// described in SPEC_FULL.md §5 to be flipped without restarting the
// process.
func (l *Loop) SetDetectionEnabled(v bool) { l.DetectionEnabled.Store(v) }
func (l *Loop) SetMotionEnabled(v bool)    { l.MotionEnabled.Store(v) }

// HandleTask runs one frame through the full Processing Loop and publishes
// its ResultPacket. An error here means the frame's slab could not be read
// or the event could not be published; the caller (the NATS message
// handler) treats it as a failed delivery and lets JetStream redeliver.
func (l *Loop) HandleTask(ctx context.Context, task model.FrameTask) error {
	handle, err := l.Frames.Get(ctx, task.FrameRef)
	if err != nil {
		return fmt.Errorf("get frame slab %s: %w", task.FrameRef, err)
	}
	if handle == nil {
		// Slab already evicted (backpressure drop, or a duplicate delivery
		// after Processing Loop already consumed and deleted it) — nothing
		// to do, not an error.
		return nil
	}
	defer func() { _ = l.Frames.Delete(ctx, task.FrameRef) }()

	frame, err := imageutil.YUVToBGR(handle.Data, task.Width, task.Height)
	if err != nil {
		return fmt.Errorf("decode frame %s: %w", task.FrameRef, err)
	}
	defer frame.Close()

	packet, err := l.process(ctx, frame, task)
	if err != nil {
		return err
	}

	if err := l.Producer.PublishEvent(ctx, l.Camera, packet); err != nil {
		return fmt.Errorf("publish event for %s: %w", task.FrameRef, err)
	}
	return nil
}

func (l *Loop) process(ctx context.Context, frame gocv.Mat, task model.FrameTask) (model.ResultPacket, error) {
	var motionBoxes []model.Box
	if l.MotionEnabled.Load() {
		motionBoxes = l.Motion.Detect(frame)
	}

	snapshot := l.Tracker.Snapshot()
	stationaryIDs := track.Stationary(snapshot, l.Stationary, motionBoxes)
	stationary := make(map[string]bool, len(stationaryIDs))
	for _, id := range stationaryIDs {
		stationary[id] = true
	}

	// Stationary tracks are seeded straight back into this frame's
	// detections (so they survive MatchAndUpdate without a fresh detector
	// hit) and excluded from the region candidates motion/non-stationary
	// tracks otherwise contribute, per spec.md §4.5 steps 3-4.
	var seeded []model.Detection
	candidates := append([]model.Box{}, motionBoxes...)
	for id, tr := range snapshot {
		if stationary[id] {
			seeded = append(seeded, model.Detection{
				Label:  tr.Label,
				Score:  tr.Score,
				Box:    tr.Box,
				Region: tr.Region,
				Area:   tr.Area,
				Ratio:  tr.Ratio,
			})
			continue
		}
		candidates = append(candidates, tr.Box)
	}

	regions := l.planRegions(task.Width, task.Height, candidates)

	regionsMode := l.faceRecognitionRegionsMode()
	objDetections := append([]model.Detection{}, seeded...)
	var personRegions []model.Region

	if l.DetectionEnabled.Load() {
		for _, reg := range regions {
			crop := imageutil.CropRegion(frame, reg.Box)
			tensor, err := regionTensor(crop, l.ModelW, l.ModelH)
			crop.Close()
			if err != nil {
				slog.Error("prepare detector tensor", "camera", l.Camera, "error", err)
				continue
			}
			dets, err := l.ObjectDetector.Detect(ctx, tensor, reg, task.Width, task.Height)
			if err != nil {
				slog.Error("object detect", "camera", l.Camera, "region", reg.Source, "error", err)
				continue
			}
			objDetections = append(objDetections, dets...)
			if regionsMode && hasPerson(dets) {
				personRegions = append(personRegions, reg)
			}
		}
	}

	objDetections = l.filterObjects(objDetections)
	objDetections = detect.NMS(objDetections, nmsScoreThreshold, nmsIoUThreshold)
	objDetections = detect.Consolidate(objDetections)

	var tracked map[string]model.TrackedObject
	if len(objDetections) == 0 {
		tracked = l.Tracker.UpdateFrameTimes(task.FrameTime)
	} else {
		tracked = l.Tracker.MatchAndUpdate(task.FrameTime, objDetections)
	}

	if regionsMode {
		l.attachFacesFromRegions(ctx, frame, task, personRegions, tracked)
	} else {
		l.attachFacesTracked(ctx, frame, task, tracked)
	}

	packet := model.ResultPacket{
		Camera:      l.Camera,
		FrameTime:   task.FrameTime,
		Detections:  tracked,
		MotionBoxes: motionBoxes,
		Regions:     regions,
	}
	return packet, nil
}

// faceRecognitionRegionsMode reports whether face_recognition_area is in
// "regions" mode (the default) rather than "tracked", per
// detector_config.py's face_recognition_area field.
func (l *Loop) faceRecognitionRegionsMode() bool {
	return !strings.EqualFold(l.FaceRecognitionArea, "tracked")
}

// hasPerson reports whether any detection in dets is labeled "person".
func hasPerson(dets []model.Detection) bool {
	for _, d := range dets {
		if d.Label == "person" {
			return true
		}
	}
	return false
}

// planRegions picks which sub-windows of the frame the object detector
// should see this frame: clusters of the given candidate boxes (motion
// boxes plus non-stationary track estimates) once the scene has been
// observed, or the next tile of a 3x3 startup scan before any candidate has
// ever been seen, per spec.md §4.5 steps 1-2.
func (l *Loop) planRegions(frameW, frameH int, candidates []model.Box) []model.Region {
	minRegion := region.MinRegionSize(l.ModelW, l.ModelH)

	if len(candidates) == 0 {
		reg, ok := region.StartupScanRegion(frameW, frameH, minRegion, l.scanCounter)
		if !ok {
			return nil
		}
		l.scanCounter++
		return []model.Region{reg}
	}
	// A candidate has been seen: the startup scan is over for good.
	l.scanCounter = 9

	clusters := region.ClusterCandidates(frameW, frameH, minRegion, candidates)
	regions := make([]model.Region, 0, len(clusters))
	for _, cluster := range clusters {
		regions = append(regions, region.ClusterRegion(frameW, frameH, minRegion, cluster, candidates))
	}
	return regions
}

// filterObjects applies spec.md §4.5.1's per-detection gates: label
// allowlist, area and score thresholds, and aspect-ratio bounds.
func (l *Loop) filterObjects(dets []model.Detection) []model.Detection {
	out := make([]model.Detection, 0, len(dets))
	for _, d := range dets {
		if len(l.ObjectsToTrack) > 0 && !containsLabel(l.ObjectsToTrack, d.Label) {
			continue
		}
		if d.Area < l.Objects.MinArea || d.Area > l.Objects.MaxArea {
			continue
		}
		if float64(d.Score) < l.Objects.MinScore {
			continue
		}
		h := d.Box.Height()
		if h > 0 {
			ratio := float64(d.Box.Width()) / float64(h)
			if ratio < l.Objects.MinRatio || ratio > l.Objects.MaxRatio {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// attachFacesFromRegions implements face_recognition_area "regions" mode:
// the face detector already ran, during the object-detection pass, on any
// region whose object detections included a person. Faces are attached to
// whichever live track strictly contains them, per spec.md §4.5 step 7.
func (l *Loop) attachFacesFromRegions(ctx context.Context, frame gocv.Mat, task model.FrameTask, personRegions []model.Region, tracked map[string]model.TrackedObject) {
	if l.FaceDetector == nil || len(personRegions) == 0 {
		return
	}

	var faces []model.FaceDetection
	for _, reg := range personRegions {
		crop := imageutil.CropRegion(frame, reg.Box)
		tensor, err := regionTensor(crop, l.FaceModelW, l.FaceModelH)
		crop.Close()
		if err != nil {
			continue
		}
		regFaces, err := l.FaceDetector.DetectFaces(ctx, tensor, reg, task.Width, task.Height)
		if err != nil {
			slog.Error("face detect", "camera", l.Camera, "region", reg.Source, "error", err)
			continue
		}
		faces = append(faces, regFaces...)
	}
	if len(faces) == 0 {
		return
	}

	for id, tr := range tracked {
		var candidates []facerec.Candidate
		for _, f := range faces {
			if !tr.Box.Contains(f.Box) {
				continue
			}
			if c, ok := l.recognizeFace(ctx, frame, id, &tr, f); ok {
				candidates = append(candidates, c)
			}
		}
		facerec.PromoteSubLabel(&tr, candidates)
		tracked[id] = tr
	}
}

// attachFacesTracked implements face_recognition_area "tracked" mode: a
// dedicated face-sized region is computed per tracked person after
// tracking, and the face detector runs once per person, per spec.md §4.5
// step 7.
func (l *Loop) attachFacesTracked(ctx context.Context, frame gocv.Mat, task model.FrameTask, tracked map[string]model.TrackedObject) {
	if l.FaceDetector == nil {
		return
	}
	for id, tr := range tracked {
		if tr.Label != "person" {
			continue
		}
		faceRegion := model.Region{Box: region.CalculateRegion(task.Width, task.Height, tr.Box, region.MinRegionSize(l.FaceModelW, l.FaceModelH), 1.0), Source: "face"}

		crop := imageutil.CropRegion(frame, faceRegion.Box)
		tensor, err := regionTensor(crop, l.FaceModelW, l.FaceModelH)
		crop.Close()
		if err != nil {
			continue
		}

		faces, err := l.FaceDetector.DetectFaces(ctx, tensor, faceRegion, task.Width, task.Height)
		if err != nil {
			slog.Error("face detect", "camera", l.Camera, "track", id, "error", err)
			continue
		}

		var candidates []facerec.Candidate
		for _, f := range faces {
			if !tr.Box.Contains(f.Box) {
				continue
			}
			if c, ok := l.recognizeFace(ctx, frame, id, &tr, f); ok {
				candidates = append(candidates, c)
			}
		}
		facerec.PromoteSubLabel(&tr, candidates)
		tracked[id] = tr
	}
}

// recognizeFace attaches f to tr as a face Attribute, runs recognition, and
// (on an accepted result) resolves the label via l.Labels. A lookup miss or
// error discards the attribution rather than fabricating a label, per
// spec.md §7.
func (l *Loop) recognizeFace(ctx context.Context, frame gocv.Mat, trackID string, tr *model.TrackedObject, f model.FaceDetection) (facerec.Candidate, bool) {
	attr := model.Attribute{Label: "face", Score: f.Score, Box: f.Box}
	tr.Attributes = append(tr.Attributes, attr)

	if l.Recognizer == nil {
		return facerec.Candidate{}, false
	}
	result, err := l.Recognizer.RecognizeFace(ctx, frame, f.Box, f.Embedding)
	if err != nil {
		slog.Error("recognize face", "camera", l.Camera, "track", trackID, "error", err)
		return facerec.Candidate{}, false
	}

	l.maybeCaptureTraining(ctx, frame, f, result)

	if !result.Accepted() {
		return facerec.Candidate{}, false
	}

	label := l.resolveLabel(ctx, result.LabelID)
	if label == "" {
		return facerec.Candidate{}, false
	}

	return facerec.Candidate{Attribute: attr, Area: f.Box.Area(), Result: result, Label: label}, true
}

// resolveLabel looks up a face label id's human name. A miss is logged at
// debug level and discarded, leaving the track's previous sub-label
// untouched, per spec.md §7.
func (l *Loop) resolveLabel(ctx context.Context, labelID int) string {
	if l.Labels == nil {
		return ""
	}
	label, err := l.Labels.Label(ctx, labelID)
	if err != nil {
		slog.Error("lookup face label", "camera", l.Camera, "label_id", labelID, "error", err)
		return ""
	}
	if label == nil {
		slog.Debug("face label lookup miss", "camera", l.Camera, "label_id", labelID)
		return ""
	}
	return label.Label
}

// maybeCaptureTraining enqueues an unlabeled (LabelID 0) FaceCaptureMsg
// carrying the face's embedding, gated by the training sideband's sentinel
// file and camera/unknown-only rules. The face crop itself is not saved.
func (l *Loop) maybeCaptureTraining(ctx context.Context, frame gocv.Mat, f model.FaceDetection, result facerec.Result) {
	if l.Faces == nil {
		return
	}
	if !l.Faces.ShouldCapture(l.Camera, l.Faces.Camera, result.LabelID) {
		return
	}

	now := time.Now()
	faceID, err := facerec.NewFaceID(now)
	if err != nil {
		slog.Error("generate face id", "camera", l.Camera, "error", err)
		return
	}

	msg := model.FaceCaptureMsg{
		Type:        "face",
		ID:          faceID,
		LabelID:     0,
		CaptureTime: now,
		Embedding:   f.Embedding,
	}
	if err := l.Producer.PublishFace(ctx, msg); err != nil {
		slog.Error("publish face capture", "camera", l.Camera, "error", err)
	}
}

// regionTensor resizes a region crop to the detector's model input size and
// returns it as a raw BGR uint8 HWC buffer, the wire format spec.md §6
// specifies for the detector IPC input.
func regionTensor(crop gocv.Mat, modelW, modelH int) ([]byte, error) {
	if crop.Empty() {
		return nil, fmt.Errorf("empty region crop")
	}
	resized := imageutil.ResizeCubic(crop, modelW, modelH)
	defer resized.Close()
	return resized.ToBytes(), nil
}
