package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cv",
		Name:      "frames_captured_total",
		Help:      "Total number of frames copied into the Frame Store",
	}, []string{"camera"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cv",
		Name:      "frames_dropped_total",
		Help:      "Total number of frames dropped, by the stage that dropped them",
	}, []string{"camera", "stage"})

	DetectionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cv",
		Name:      "detections_total",
		Help:      "Total number of object detections after NMS/consolidation",
	}, []string{"camera", "label"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cv",
		Name:      "faces_recognized_total",
		Help:      "Total number of accepted face recognitions",
	}, []string{"camera"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cv",
		Name:      "inference_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.002, 2, 12),
	}, []string{"stage"})

	DetectorAvgInferenceSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cv",
		Name:      "detector_avg_inference_seconds",
		Help:      "EWMA of detector inference duration",
	}, []string{"detector", "kind"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cv",
		Name:      "queue_depth",
		Help:      "Number of pending messages in a JetStream stream",
	}, []string{"stream"})

	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cv",
		Name:      "active_cameras",
		Help:      "Number of cameras with a live capture watchdog",
	})

	DecoderRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cv",
		Name:      "decoder_restarts_total",
		Help:      "Total number of decoder child-process restarts",
	}, []string{"camera", "reason"})
)
