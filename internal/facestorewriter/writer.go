// Package facestorewriter implements the Face Store Writer: the single
// background consumer of the faces.capture sideband, the only process
// permitted to write to the Face Store.
package facestorewriter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/camvision/internal/model"
	"github.com/your-org/camvision/internal/queue"
	"github.com/your-org/camvision/internal/storage"
)

// Writer drains faces.capture and idempotently inserts each record. A
// single instance must run per deployment: concurrent writers would race
// on this record's id uniqueness but not corrupt data, since InsertRecord
// is already ON CONFLICT DO NOTHING — the "single writer" constraint is
// about keeping the sideband's ordering meaningful for debugging, not
// correctness.
type Writer struct {
	consumer *queue.Consumer
	db       *storage.PostgresStore

	pruneInterval time.Duration
	retention     time.Duration
}

func New(consumer *queue.Consumer, db *storage.PostgresStore, retention time.Duration) *Writer {
	return &Writer{
		consumer:      consumer,
		db:            db,
		pruneInterval: 1 * time.Hour,
		retention:     retention,
	}
}

// Run starts the faces.capture consumer and the retention housekeeping
// ticker. Blocks until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) error {
	if err := w.consumer.ConsumeFaces(ctx, "face-store-writer", w.handle); err != nil {
		return fmt.Errorf("start face capture consumer: %w", err)
	}

	if w.retention <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *Writer) handle(ctx context.Context, msg jetstream.Msg) error {
	var capture model.FaceCaptureMsg
	if err := json.Unmarshal(msg.Data(), &capture); err != nil {
		slog.Error("unmarshal face capture", "error", err)
		return nil // malformed payload, don't retry
	}
	if capture.Type != "face" {
		return nil // only face captures are stored
	}

	rec := model.FaceRecord{
		ID:          capture.ID,
		LabelID:     capture.LabelID,
		CaptureTime: capture.CaptureTime,
		Embedding:   capture.Embedding,
	}
	if err := w.db.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("insert face record %s: %w", capture.ID, err)
	}
	return nil
}

func (w *Writer) prune(ctx context.Context) {
	cutoff := time.Now().Add(-w.retention)
	n, err := w.db.PruneOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("prune unlabeled face records", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned unlabeled face records", "count", n, "cutoff", cutoff)
	}
}
