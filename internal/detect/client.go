package detect

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/your-org/camvision/internal/model"
)

// RemoteDetector calls a detector worker pool over NATS request-reply. A
// request that times out (no reply within the deadline) is a soft failure:
// the client returns an empty detection list, not an error — matching the
// original's 5s-wait-then-empty contract.
type RemoteDetector struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
	labels  []string
}

func NewRemoteDetector(nc *nats.Conn, subject string, timeout time.Duration, labels []string) *RemoteDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteDetector{nc: nc, subject: subject, timeout: timeout, labels: labels}
}

func (c *RemoteDetector) labelFor(idx float32) string {
	i := int(idx)
	if i < 0 || i >= len(c.labels) {
		return ""
	}
	return c.labels[i]
}

func (c *RemoteDetector) request(ctx context.Context, tensor []byte) ([]byte, bool) {
	reqCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply, err := c.nc.RequestWithContext(reqCtx, c.subject, tensor)
	if err != nil {
		return nil, false
	}
	return reply.Data, true
}

// Detect implements Detector for the object-detector pool.
func (c *RemoteDetector) Detect(ctx context.Context, tensor []byte, region model.Region, frameW, frameH int) ([]model.Detection, error) {
	data, ok := c.request(ctx, tensor)
	if !ok {
		return nil, nil
	}
	rows := decodeMatrix(data, ObjectCols)

	var out []model.Detection
	for _, r := range rows {
		label := c.labelFor(r.label)
		if label == "" {
			slog.Warn("detector returned an invalid label id", "subject", c.subject, "label_id", r.label)
			continue
		}
		box, ok := DenormalizeBox(r.x1, r.y1, r.x2, r.y2, region, frameW, frameH)
		if !ok {
			continue
		}
		out = append(out, model.Detection{
			Label:  label,
			Score:  r.score,
			Box:    box,
			Region: region,
			Area:   box.Area(),
		})
	}
	return out, nil
}

// DetectFaces implements FaceDetector for the face-detector pool.
func (c *RemoteDetector) DetectFaces(ctx context.Context, tensor []byte, region model.Region, frameW, frameH int) ([]model.FaceDetection, error) {
	data, ok := c.request(ctx, tensor)
	if !ok {
		return nil, nil
	}
	rows := decodeMatrix(data, FaceCols)

	var out []model.FaceDetection
	for _, r := range rows {
		box, ok := DenormalizeBox(r.x1, r.y1, r.x2, r.y2, region, frameW, frameH)
		if !ok {
			continue
		}
		out = append(out, model.FaceDetection{
			Box:       box,
			Score:     r.score,
			Embedding: r.embedding,
		})
	}
	return out, nil
}

// LocalDetector runs an ONNX model in-process, used for tests and
// single-process deployments where a separate detector worker is overkill.
// tensor is the same raw uint8 HWC buffer the wire protocol carries.
type LocalDetector struct {
	infer  func(tensor []byte) ([]row, error)
	labels []string
}

func NewLocalObjectDetector(m *ObjectModel) *LocalDetector {
	return &LocalDetector{infer: m.InferHWC, labels: m.Labels()}
}

func NewLocalFaceDetector(m *FaceModel) *LocalDetector {
	return &LocalDetector{infer: m.InferHWC}
}

func (c *LocalDetector) labelFor(idx float32) string {
	i := int(idx)
	if i < 0 || i >= len(c.labels) {
		return ""
	}
	return c.labels[i]
}

func (c *LocalDetector) Detect(ctx context.Context, tensor []byte, region model.Region, frameW, frameH int) ([]model.Detection, error) {
	rows, err := c.infer(tensor)
	if err != nil {
		return nil, err
	}
	var out []model.Detection
	for _, r := range rows {
		label := c.labelFor(r.label)
		if label == "" {
			slog.Warn("detector returned an invalid label id", "label_id", r.label)
			continue
		}
		box, ok := DenormalizeBox(r.x1, r.y1, r.x2, r.y2, region, frameW, frameH)
		if !ok {
			continue
		}
		out = append(out, model.Detection{Label: label, Score: r.score, Box: box, Region: region, Area: box.Area()})
	}
	return out, nil
}

func (c *LocalDetector) DetectFaces(ctx context.Context, tensor []byte, region model.Region, frameW, frameH int) ([]model.FaceDetection, error) {
	rows, err := c.infer(tensor)
	if err != nil {
		return nil, err
	}
	var out []model.FaceDetection
	for _, r := range rows {
		box, ok := DenormalizeBox(r.x1, r.y1, r.x2, r.y2, region, frameW, frameH)
		if !ok {
			continue
		}
		out = append(out, model.FaceDetection{Box: box, Score: r.score, Embedding: r.embedding})
	}
	return out, nil
}
