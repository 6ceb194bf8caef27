package detect

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/your-org/camvision/internal/observability"
)

// Worker answers detection requests over NATS request-reply: one message
// in, one fixed-shape matrix reply out. Multiple workers can share a queue
// group so the pool load-balances.
type Worker struct {
	nc            *nats.Conn
	subject       string
	queueGroup    string
	kind          Kind
	cols          int
	infer         func(tensor []byte) ([]row, error)
	pauseOnTimeout time.Duration

	avgInferenceSeconds float64
}

func NewWorker(nc *nats.Conn, subject, queueGroup string, kind Kind, infer func(tensor []byte) ([]row, error), pauseOnTimeout time.Duration) *Worker {
	cols := ObjectCols
	if kind == KindFace {
		cols = FaceCols
	}
	return &Worker{
		nc:             nc,
		subject:        subject,
		queueGroup:     queueGroup,
		kind:           kind,
		cols:           cols,
		infer:          infer,
		pauseOnTimeout: pauseOnTimeout,
	}
}

// Run subscribes and blocks until stop is closed.
func (w *Worker) Run(stop <-chan struct{}) error {
	sub, err := w.nc.QueueSubscribe(w.subject, w.queueGroup, w.handle)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	slog.Info("detector worker listening", "subject", w.subject, "kind", w.kind)
	<-stop
	return nil
}

func (w *Worker) handle(msg *nats.Msg) {
	start := time.Now()

	rows, err := w.infer(msg.Data)
	timedOut := false
	if err != nil {
		slog.Warn("detector inference failed", "kind", w.kind, "error", err)
		rows = nil
		timedOut = true
	}

	duration := time.Since(start)
	w.avgInferenceSeconds = w.avgInferenceSeconds*0.9 + duration.Seconds()*0.1
	observability.DetectorAvgInferenceSpeed.WithLabelValues(w.subject, string(w.kind)).Set(w.avgInferenceSeconds)

	payload := EncodeMatrix(rows, w.cols)
	if msg.Reply != "" {
		_ = w.nc.Publish(msg.Reply, payload)
	}

	if timedOut && w.kind == KindFace && w.pauseOnTimeout > 0 {
		time.Sleep(w.pauseOnTimeout)
	}
}
