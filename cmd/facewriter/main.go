package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/facestorewriter"
	"github.com/your-org/camvision/internal/observability"
	"github.com/your-org/camvision/internal/queue"
	"github.com/your-org/camvision/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	retention := flag.Duration("unlabeled-retention", 7*24*time.Hour, "how long unlabeled training captures are kept before pruning")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	writer := facestorewriter.New(consumer, db, *retention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := writer.Run(ctx); err != nil {
			slog.Error("face store writer stopped", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("face store writer metrics listening", "addr", ":8084")
		if err := http.ListenAndServe(":8084", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	slog.Info("face store writer started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down face store writer...")
	cancel()
	time.Sleep(1 * time.Second)
	slog.Info("face store writer stopped")
}
