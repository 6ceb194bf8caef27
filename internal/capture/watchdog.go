package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/your-org/camvision/internal/config"
	"github.com/your-org/camvision/internal/framestore"
	"github.com/your-org/camvision/internal/model"
	"github.com/your-org/camvision/internal/observability"
	"github.com/your-org/camvision/internal/queue"
	"github.com/your-org/camvision/internal/storage"
)

const (
	wakeInterval       = 5 * time.Second
	staleFrameTimeout  = 20 * time.Second
	staleRecorderAfter = 120 * time.Second
	terminateGrace     = 30 * time.Second
)

// Watchdog supervises one camera's decoder process: restarting it on
// death or staleness, copying each frame into the Frame Store, and
// publishing a frame reference. Restart attempts are rate-limited to avoid
// a crash-restart storm on a consistently broken stream.
type Watchdog struct {
	camera config.CameraConfig
	frames *framestore.Store
	prod   *queue.Producer
	minio  *storage.MinIOStore

	restartLimiter *rate.Limiter

	lastFrame   atomic.Int64 // unix nanos
	frameCount  atomic.Int64
	captureDead atomic.Bool

	mu      sync.Mutex
	decoder *Decoder
}

func NewWatchdog(camera config.CameraConfig, frames *framestore.Store, prod *queue.Producer, minio *storage.MinIOStore) *Watchdog {
	return &Watchdog{
		camera:         camera,
		frames:         frames,
		prod:           prod,
		minio:          minio,
		restartLimiter: rate.NewLimiter(rate.Every(10*time.Second), 3),
	}
}

// Run supervises the camera until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	observability.ActiveCameras.Inc()
	defer observability.ActiveCameras.Dec()

	w.captureDead.Store(true)
	go w.superviseLoop(ctx)

	for ctx.Err() == nil {
		if !w.restartLimiter.Allow() {
			time.Sleep(time.Second)
			continue
		}
		w.captureDead.Store(false)
		w.runOnce(ctx)
		w.captureDead.Store(true)
	}
}

func (w *Watchdog) runOnce(ctx context.Context) {
	decoder := NewDecoder(w.camera.URL, w.camera.Width, w.camera.Height, w.camera.FPS)
	w.mu.Lock()
	w.decoder = decoder
	w.mu.Unlock()

	err := decoder.Run(ctx,
		func(frame []byte) error { return w.handleFrame(ctx, frame) },
		func(line string) { slog.Debug("ffmpeg", "camera", w.camera.Name, "line", line) },
	)
	if err != nil && ctx.Err() == nil {
		slog.Warn("decoder exited", "camera", w.camera.Name, "error", err)
		observability.DecoderRestarts.WithLabelValues(w.camera.Name, "exit").Inc()
	}
}

func (w *Watchdog) handleFrame(ctx context.Context, data []byte) error {
	now := time.Now()
	w.lastFrame.Store(now.UnixNano())
	w.frameCount.Add(1)

	name := fmt.Sprintf("%s/%d", w.camera.Name, now.UnixNano())
	if err := w.frames.Create(ctx, name, data); err != nil {
		slog.Error("create frame slab", "camera", w.camera.Name, "error", err)
		observability.FramesDropped.WithLabelValues(w.camera.Name, "slab_write").Inc()
		return nil
	}

	task := model.FrameTask{
		Camera:    w.camera.Name,
		FrameTime: now,
		FrameRef:  name,
		Width:     w.camera.Width,
		Height:    w.camera.Height,
	}
	if err := w.prod.PublishFrame(ctx, w.camera.Name, task); err != nil {
		// Backpressure: the frame reference couldn't be queued, so delete the
		// slab immediately rather than let it accumulate unread in the store.
		_ = w.frames.Delete(ctx, name)
		observability.FramesDropped.WithLabelValues(w.camera.Name, "publish").Inc()
		return nil
	}

	observability.FramesCaptured.WithLabelValues(w.camera.Name).Inc()
	return nil
}

// superviseLoop runs the fixed 5s wake-interval health checks: capture
// goroutine liveness, frame staleness, FPS overrun, and auxiliary recorder
// staleness.
func (w *Watchdog) superviseLoop(ctx context.Context) {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()

	var lastCount int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if w.captureDead.Load() {
			continue // Run's own restart loop already handles this
		}

		lastFrameNanos := w.lastFrame.Load()
		if lastFrameNanos != 0 && time.Since(time.Unix(0, lastFrameNanos)) > staleFrameTimeout {
			slog.Warn("no frame seen recently, restarting decoder", "camera", w.camera.Name)
			w.forceRestart("stale")
			continue
		}

		count := w.frameCount.Load()
		observedFPS := float64(count-lastCount) / wakeInterval.Seconds()
		lastCount = count
		if observedFPS >= float64(w.camera.FPS+10) {
			slog.Warn("decoder FPS overrun, restarting", "camera", w.camera.Name, "observed_fps", observedFPS)
			w.forceRestart("fps_overrun")
			continue
		}

		if w.recorderStale(ctx) {
			slog.Warn("recorder sidecar stale, restarting decoder", "camera", w.camera.Name)
			w.forceRestart("recorder_stale")
		}
	}
}

func (w *Watchdog) forceRestart(reason string) {
	observability.DecoderRestarts.WithLabelValues(w.camera.Name, reason).Inc()
	w.mu.Lock()
	d := w.decoder
	w.mu.Unlock()
	if d != nil {
		d.Terminate(terminateGrace)
	}
}

// recorderStale checks the latest recorder segment object's key timestamp
// in MinIO against the configured staleness window, the concrete form
// SPEC_FULL.md gives the "auxiliary decoder staleness" supervision rule.
func (w *Watchdog) recorderStale(ctx context.Context) bool {
	prefix := fmt.Sprintf("recordings/%s/", w.camera.Name)
	keys, err := w.minio.ListObjects(ctx, prefix)
	if err != nil || len(keys) == 0 {
		return false // no recorder sidecar configured for this camera
	}

	latest := keys[len(keys)-1]
	var ts int64
	if _, err := fmt.Sscanf(latest, prefix+"%d", &ts); err != nil {
		return false
	}
	window := w.camera.RecorderStaleAfter
	if window <= 0 {
		window = staleRecorderAfter
	}
	return time.Since(time.Unix(0, ts)) > window
}
