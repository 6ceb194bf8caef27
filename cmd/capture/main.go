package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/camvision/internal/capture"
	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/framestore"
	"github.com/your-org/camvision/internal/observability"
	"github.com/your-org/camvision/internal/queue"
	"github.com/your-org/camvision/internal/storage"
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

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Error("ensure minio bucket", "error", err)
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

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, cam := range cfg.Cameras {
		wd := capture.NewWatchdog(cam, frames, producer, minioStore)
		wg.Add(1)
		go func() {
			defer wg.Done()
			wd.Run(runCtx)
		}()
		slog.Info("capture watchdog started", "camera", cam.Name, "url", cam.URL)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("capture metrics listening", "addr", ":8081")
		if err := http.ListenAndServe(":8081", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down capture...")
	cancel()
	wg.Wait()
	time.Sleep(1 * time.Second)
	slog.Info("capture stopped")
}
