package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/detect"
	"github.com/your-org/camvision/internal/observability"
	"github.com/your-org/camvision/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	kindFlag := flag.String("kind", "object", "detector kind: object or face")
	subject := flag.String("subject", "", "NATS request-reply subject (default detect.<kind>)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	kind := detect.KindObject
	if *kindFlag == "face" {
		kind = detect.KindFace
	}
	subj := *subject
	if subj == "" {
		subj = "detect." + string(kind)
	}

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	opts, err := ort.NewSessionOptions()
	if err != nil {
		slog.Error("create session options", "error", err)
		os.Exit(1)
	}
	defer opts.Destroy()
	if cfg.Model.IntraOpThreads > 0 {
		_ = opts.SetIntraOpNumThreads(cfg.Model.IntraOpThreads)
	}
	if cfg.Model.InterOpThreads > 0 {
		_ = opts.SetInterOpNumThreads(cfg.Model.InterOpThreads)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	var worker *detect.Worker
	switch kind {
	case detect.KindObject:
		m, err := detect.NewObjectModel(cfg.Model.ObjectModelPath, cfg.Model.Labels, cfg.Model.ObjectWidth, cfg.Model.ObjectHeight, float32(cfg.Tracking.DetectionThreshold), opts)
		if err != nil {
			slog.Error("load object model", "error", err)
			os.Exit(1)
		}
		defer m.Close()
		worker = detect.NewWorker(producer.Conn(), subj, "detector-object", kind, m.InferHWC, cfg.Faces.RecognitionPauseOnTimeout)
	case detect.KindFace:
		m, err := detect.NewFaceModel(cfg.Model.FaceModelPath, cfg.Model.FaceDetectionWidth, cfg.Model.FaceDetectionHeight, float32(cfg.Tracking.DetectionThreshold), opts)
		if err != nil {
			slog.Error("load face model", "error", err)
			os.Exit(1)
		}
		defer m.Close()
		worker = detect.NewWorker(producer.Conn(), subj, "detector-face", kind, m.InferHWC, cfg.Faces.RecognitionPauseOnTimeout)
	}

	stop := make(chan struct{})
	go func() {
		if err := worker.Run(stop); err != nil {
			slog.Error("detector worker stopped", "error", err)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("detector metrics listening", "addr", ":8082", "kind", kind, "subject", subj)
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down detector...")
	close(stop)
	time.Sleep(1 * time.Second)
	slog.Info("detector stopped")
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
