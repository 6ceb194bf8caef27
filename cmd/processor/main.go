package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/detect"
	"github.com/your-org/camvision/internal/facerec"
	"github.com/your-org/camvision/internal/framestore"
	"github.com/your-org/camvision/internal/model"
	"github.com/your-org/camvision/internal/motion"
	"github.com/your-org/camvision/internal/observability"
	"github.com/your-org/camvision/internal/pipeline"
	"github.com/your-org/camvision/internal/queue"
	"github.com/your-org/camvision/internal/storage"
	"github.com/your-org/camvision/internal/track"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	frames := framestore.New(minioStore)

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	objectDetector := detect.NewRemoteDetector(producer.Conn(), "detect.object", cfg.Tracking.RequestTimeout, cfg.Model.Labels)
	faceDetector := detect.NewRemoteDetector(producer.Conn(), "detect.face", cfg.Tracking.RequestTimeout, nil)

	recognizer, err := facerec.NewRecognizer(cfg.Faces, db)
	if err != nil {
		slog.Error("init face recognizer", "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, cam := range cfg.Cameras {
		loop := &pipeline.Loop{
			Camera:              cam.Name,
			ObjectsToTrack:      cam.ObjectsToTrack,
			FaceRecognitionArea: cam.FaceRecognitionArea,
			Frames:              frames,
			Producer:            producer,
			Faces:               &facerec.TrainingSideband{FacesDir: cfg.Faces.FacesDir, Camera: cfg.Faces.TrainingCamera, UnknownOnly: cfg.Faces.TrainingUnknownOnly},
			Labels:              db,
			ObjectDetector:      objectDetector,
			FaceDetector:        faceDetector,
			Recognizer:          recognizer,
			Motion:              motion.New(cfg.Motion.ContourArea, cfg.Motion.Threshold, cfg.Motion.ImproveContrast),
			Tracker:             track.NewTracker(cam.Name, cfg.Tracking.MaxDisappeared, cfg.Tracking.MinIoU),
			ModelW:              cfg.Model.ObjectWidth,
			ModelH:              cfg.Model.ObjectHeight,
			FaceModelW:          cfg.Model.FaceDetectionWidth,
			FaceModelH:          cfg.Model.FaceDetectionHeight,
			Objects:             cfg.Objects,
			Stationary:          track.StationaryThreshold{MinMotionless: cfg.Tracking.StationaryThreshold, Interval: cfg.Tracking.StationaryInterval},
		}
		loop.SetDetectionEnabled(true)
		loop.SetMotionEnabled(true)

		if err := consumer.ConsumeFrames(runCtx, cam.Name, "processor-"+cam.Name, func(ctx context.Context, msg jetstream.Msg) error {
			var task model.FrameTask
			if err := json.Unmarshal(msg.Data(), &task); err != nil {
				slog.Error("unmarshal frame task", "error", err)
				return nil
			}
			return loop.HandleTask(ctx, task)
		}); err != nil {
			slog.Error("start frame consumer", "camera", cam.Name, "error", err)
			os.Exit(1)
		}
		slog.Info("processing loop started", "camera", cam.Name)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if depth, err := producer.StreamDepth(runCtx, queue.EventsStreamName); err == nil {
					observability.QueueDepth.WithLabelValues(queue.EventsStreamName).Set(float64(depth))
				}
			}
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("processor metrics listening", "addr", ":8083")
		if err := http.ListenAndServe(":8083", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down processor...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("processor stopped")
}
